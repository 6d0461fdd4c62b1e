package records

import (
	"encoding/json"
	"errors"
	"fmt"

	"consentwallet/internal/domain"
	"consentwallet/internal/i18n"
)

// Metadata types.
const (
	TypeTranslation              = "translation"
	TypeUserProvidedData         = "user_provided_data"
	TypeUserProvidedDataTemplate = "user_provided_data_template"
	TypeURL                      = "url"
)

// UserProvidedDataName is the metadata name of form submissions.
const UserProvidedDataName = "User provided data during record activation"

type referrer interface {
	MetadataRefs() []string
}

// Metadata finds the first metadata of the given type referenced by obj.
func Metadata(obj referrer, metadataType string, metadatas map[string]domain.Metadata) (domain.Metadata, bool) {
	for _, id := range obj.MetadataRefs() {
		m, ok := metadatas[id]
		if ok && m.Type == metadataType {
			return m, true
		}
	}
	return domain.Metadata{}, false
}

// URL returns json_data.url of the url metadata with subtype1 == urlType.
func URL(obj referrer, urlType string, metadatas map[string]domain.Metadata) string {
	for _, id := range obj.MetadataRefs() {
		m, ok := metadatas[id]
		if !ok || m.Type != TypeURL || m.Subtype1 != urlType {
			continue
		}
		if u, ok := m.JSONData["url"].(string); ok {
			return u
		}
	}
	return ""
}

// Translation is a translated field value and its ISO 639-3 language.
type Translation struct {
	Value string `json:"value"`
	Lang  string `json:"lang"`
}

// Translate returns field of obj in lang. Translations are metadata of type
// "translation" with subtype1 naming the field, subtype2 the alpha-3
// language and json_data.value the text. Falls back to the object's default
// language, then to the untranslated field.
func Translate(obj domain.Translatable, field, lang string, metadatas map[string]domain.Metadata) Translation {
	byLang := map[string]string{}
	for _, id := range obj.MetadataRefs() {
		m, ok := metadatas[id]
		if !ok || m.Type != TypeTranslation || m.Subtype1 != field {
			continue
		}
		if v, ok := m.JSONData["value"].(string); ok && v != "" {
			byLang[i18n.ISO3(m.Subtype2)] = v
		}
	}
	defaultLang := i18n.ISO3(obj.Language())
	if defaultLang == "" {
		defaultLang = i18n.Alpha3(i18n.DefaultLanguage)
	}
	if want := i18n.ISO3(lang); want != "" {
		if v, ok := byLang[want]; ok {
			return Translation{Value: v, Lang: want}
		}
	}
	if v, ok := byLang[defaultLang]; ok {
		return Translation{Value: v, Lang: defaultLang}
	}
	return Translation{Value: obj.Field(field), Lang: defaultLang}
}

// TemplateField describes one input of a user-provided-data template.
type TemplateField struct {
	Name         string                       `json:"name"`
	Label        string                       `json:"label,omitempty"`
	MaxLength    int                          `json:"maxLength"`
	Help         string                       `json:"help,omitempty"`
	Placeholder  string                       `json:"placeholder,omitempty"`
	Type         string                       `json:"type,omitempty"`
	Required     bool                         `json:"required,omitempty"`
	Translations map[string]map[string]string `json:"translations"`

	raw map[string]any
}

// Template is a parsed user_provided_data_template metadata.
type Template struct {
	MetadataUUID string
	Fields       []TemplateField
	// err is set when json_data could not be read as a field list.
	err error
}

// UserProvidedDataTemplate returns the consumer's data template, if any.
// A template is returned even when malformed so callers can tell "no
// template" from "invalid template".
func UserProvidedDataTemplate(consumer domain.DataConsumer, metadatas map[string]domain.Metadata) (Template, bool) {
	m, ok := Metadata(consumer, TypeUserProvidedDataTemplate, metadatas)
	if !ok {
		return Template{}, false
	}
	return ParseTemplate(m), true
}

// ParseTemplate reads json_data.data of a template metadata.
func ParseTemplate(m domain.Metadata) Template {
	tpl := Template{MetadataUUID: m.UUID}
	data, ok := m.JSONData["data"].([]any)
	if !ok {
		tpl.err = errors.New("json_data.data is not a list")
		return tpl
	}
	for i, item := range data {
		attrs, ok := item.(map[string]any)
		if !ok {
			tpl.err = fmt.Errorf("field %d is not an object", i)
			return tpl
		}
		raw, err := json.Marshal(attrs)
		if err != nil {
			tpl.err = err
			return tpl
		}
		var f TemplateField
		if err := json.Unmarshal(raw, &f); err != nil {
			tpl.err = fmt.Errorf("field %d: %w", i, err)
			return tpl
		}
		f.raw = attrs
		tpl.Fields = append(tpl.Fields, f)
	}
	return tpl
}

var templateLanguages = []string{"fin", "eng", "swe"}

// ValidateTemplate checks every field has a name, a max length and a
// labelled translation for each supported language.
func ValidateTemplate(tpl Template) error {
	if tpl.err != nil {
		return tpl.err
	}
	for i, f := range tpl.Fields {
		if _, ok := f.raw["name"]; !ok {
			return fmt.Errorf("field %d: name missing", i)
		}
		if _, ok := f.raw["maxLength"]; !ok {
			return fmt.Errorf("field %s: maxLength missing", f.Name)
		}
		if f.Translations == nil {
			return fmt.Errorf("field %s: translations missing", f.Name)
		}
		for _, lang := range templateLanguages {
			tr, ok := f.Translations[lang]
			if !ok {
				return fmt.Errorf("field %s: %s translation missing", f.Name, lang)
			}
			_, hasLabel := tr["label"]
			_, hasName := tr["name"]
			if !hasLabel && !hasName {
				return fmt.Errorf("field %s: %s translation has no label", f.Name, lang)
			}
		}
	}
	return nil
}

// FieldText returns a translatable attribute (label, help, placeholder) of
// a template field in the alpha-3 language, falling back to the field's own
// attribute.
func FieldText(f TemplateField, attr, alpha3 string) string {
	if tr, ok := f.Translations[alpha3]; ok {
		if v, ok := tr[attr]; ok {
			return v
		}
	}
	switch attr {
	case "label":
		return f.Label
	case "help":
		return f.Help
	case "placeholder":
		return f.Placeholder
	case "name":
		return f.Name
	}
	return ""
}

// UserProvidedData returns the record's submitted form data.
func UserProvidedData(d domain.RecordData) (domain.Metadata, bool) {
	return Metadata(d.Record, TypeUserProvidedData, d.Metadatas)
}
