package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"consentwallet/internal/domain"
	"consentwallet/internal/form"
	"consentwallet/internal/i18n"
	"consentwallet/internal/records"
	"consentwallet/internal/timeline"
)

const dateLayout = "2.1.2006"

// Renderer writes views to Out. Colors are only emitted when Color is set.
type Renderer struct {
	Out   io.Writer
	Color bool
	Tr    i18n.Translator
	// Lang is the alpha-3 language used for entity translations.
	Lang string
}

func (r *Renderer) paint(c text.Colors, s string) string {
	if !r.Color || len(c) == 0 {
		return s
	}
	return c.Sprint(s)
}

func (r *Renderer) t(key string, params map[string]string) string {
	if r.Tr == nil {
		return key
	}
	return r.Tr.T(key, params)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(dateLayout)
}

// Button renders a button label in its variant style.
func (r *Renderer) Button(label string, v Variant, isDisabled bool) string {
	st := v.Style()
	c := st.Normal
	if isDisabled {
		c = st.Disabled
	}
	return r.paint(c, "[ "+label+" ]")
}

// InfoBox writes msg with a variant colored bar.
func (r *Renderer) InfoBox(v Variant, msg string) {
	bar := r.paint(v.Style().Border, "│")
	for _, line := range strings.Split(msg, "\n") {
		fmt.Fprintf(r.Out, "%s %s\n", bar, line)
	}
}

// Notify implements form.Notifier.
func (r *Renderer) Notify(level form.Level, msg string) {
	v := VariantPrimary
	if level == form.LevelError {
		v = VariantError
	}
	r.InfoBox(v, msg)
}

func (r *Renderer) status(status string) string {
	return r.paint(StatusColors(status), i18n.Capitalize(r.t(status, nil)))
}

// RecordsTable lists records in the given order.
func (r *Renderer) RecordsTable(data []domain.RecordData) {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.Out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"", "UUID", "Service", "Organization", "Status", "Your status", "Created"})
	for _, d := range data {
		marker := ""
		if d.IsPendingUserActivation {
			marker = r.paint(text.Colors{text.FgYellow}, "●")
		}
		tw.AppendRow(table.Row{
			marker,
			d.Record.UUID,
			records.Translate(d.Consumer, "name", r.Lang, d.Metadatas).Value,
			records.Translate(d.ConsumerOrg, "name", r.Lang, d.Metadatas).Value,
			records.StatusIcon(string(d.Record.Status), "").Symbol() + " " + r.status(string(d.Record.Status)),
			r.status(string(d.UserParticipant.Status)),
			formatDate(d.Record.Created.Time),
		})
	}
	tw.Render()
}

// RecordDetail writes the summary card of a record.
func (r *Renderer) RecordDetail(d domain.RecordData, actions records.Actions, infoText string) {
	name := records.Translate(d.Consumer, "name", r.Lang, d.Metadatas).Value
	org := records.Translate(d.ConsumerOrg, "name", r.Lang, d.Metadatas).Value
	fmt.Fprintf(r.Out, "%s %s\n", records.TypeIcon(d.Record.RecordType).Symbol(), r.paint(text.Colors{text.Bold}, name))
	fmt.Fprintf(r.Out, "%s\n\n", org)

	tw := table.NewWriter()
	tw.SetOutputMirror(r.Out)
	tw.SetStyle(table.StyleLight)
	tw.AppendRow(table.Row{"Status", records.StatusIcon(string(d.Record.Status), d.UserParticipant.Status).Symbol() + " " + r.status(string(d.Record.Status))})
	tw.AppendRow(table.Row{"Type", d.Record.RecordType})
	if !d.Record.Expires.IsZero() {
		tw.AppendRow(table.Row{"Expires", formatDate(d.Record.Expires.Time)})
	}
	for _, field := range []string{"description", "purpose", "legal"} {
		if v := records.Translate(d.Consumer, field, r.Lang, d.Metadatas).Value; v != "" {
			tw.AppendRow(table.Row{i18n.Capitalize(field), v})
		}
	}
	if d.IsMultiActivated {
		tw.AppendRow(table.Row{"On behalf of", d.DataSubjectParticipant.IdentifierDisplayName})
	}
	tw.Render()

	if infoText != "" {
		r.InfoBox(InfoBoxVariant(d.Record.Status), infoText)
	}
	if actions.ShowNotValid {
		r.InfoBox(VariantSecondary, r.t("textNotValidConsent", nil))
	}
	if actions.TemplateInvalid {
		r.InfoBox(VariantError, r.t("textWarningTemplateInvalid", nil))
	}
	if actions.Visible && !actions.Buttons {
		r.InfoBox(VariantSecondary, r.t("textOnBehalfUser", nil))
	}
	if actions.Buttons {
		accept := r.t("Accept", nil)
		if actions.NeedsInput {
			accept += " ..."
		}
		fmt.Fprintf(r.Out, "\n%s  %s\n",
			r.Button(accept, VariantAccept, !actions.CanAccept),
			r.Button(r.t("Decline", nil), VariantDecline, !actions.CanDecline))
	}
}

// LogList writes a timeline with an optional trailing notice.
func (r *Renderer) LogList(heading string, items []timeline.LogItem, notice string) {
	fmt.Fprintln(r.Out, r.paint(text.Colors{text.Bold}, heading))
	tw := table.NewWriter()
	tw.SetOutputMirror(r.Out)
	tw.SetStyle(table.StyleLight)
	for _, it := range items {
		date := ""
		if it.Date != nil {
			date = formatDate(*it.Date)
		}
		body := it.Title
		if it.Text != "" {
			body += "\n" + it.Text
		}
		tw.AppendRow(table.Row{r.paint(ToneColors(it.Icon.Tone), it.Icon.Glyph.Symbol()), date, body})
	}
	if len(items) > 0 {
		tw.Render()
	}
	if notice != "" {
		r.InfoBox(VariantSecondary, notice)
	}
}

// Fields writes form fields with their current values.
func (r *Renderer) Fields(fields []form.Field, values map[string]string, errs form.ValidationErrors) {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.Out)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"Field", "Value", ""})
	for _, f := range fields {
		if f.Type == form.TypeHidden {
			continue
		}
		label := f.Label
		if label == "" {
			label = f.Name
		}
		if f.Required {
			label += " *"
		}
		tw.AppendRow(table.Row{label, values[f.Name], r.paint(VariantError.Style().Normal, errs[f.Name])})
	}
	tw.Render()
}
