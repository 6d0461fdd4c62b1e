package domain

// Translatable is an entity whose text fields may have translations
// attached as metadata.
type Translatable interface {
	MetadataRefs() []string
	Field(name string) string
	Language() string
}

func (c DataConsumer) MetadataRefs() []string { return c.MetadataUUIDs }
func (c DataConsumer) Language() string       { return c.DefaultLanguage }

func (c DataConsumer) Field(name string) string {
	switch name {
	case "name":
		return c.Name
	case "description":
		return c.Description
	case "purpose":
		return c.Purpose
	case "legal":
		return c.Legal
	case "pre_cancellation":
		return c.PreCancellation
	case "post_cancellation":
		return c.PostCancellation
	}
	return ""
}

func (p DataProvider) MetadataRefs() []string { return p.MetadataUUIDs }
func (p DataProvider) Language() string       { return p.DefaultLanguage }

func (p DataProvider) Field(name string) string {
	switch name {
	case "name":
		return p.Name
	case "description":
		return p.Description
	}
	return ""
}

func (o Organization) MetadataRefs() []string { return o.MetadataUUIDs }
func (o Organization) Language() string       { return o.DefaultLanguage }

func (o Organization) Field(name string) string {
	switch name {
	case "name":
		return o.Name
	case "description":
		return o.Description
	}
	return ""
}

func (r ProcessingRecord) MetadataRefs() []string { return r.MetadataUUIDs }
func (a AuthItem) MetadataRefs() []string         { return a.MetadataUUIDs }
func (p IDProvider) MetadataRefs() []string       { return p.MetadataUUIDs }
