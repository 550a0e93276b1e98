package models

// JSON value types a reply field may declare.
const (
	FieldString  = "string"
	FieldBoolean = "boolean"
	FieldNumber  = "number"
	FieldArray   = "array"
)

// SchemaField describes one required field of the provider reply.
type SchemaField struct {
	Name        string
	Type        string
	ItemType    string // element type when Type is FieldArray
	Description string
}

// ResponseSchema is the provider-neutral descriptor of the expected JSON reply.
// Field order is significant: it is the order the provider is told about.
type ResponseSchema struct {
	Fields []SchemaField
}

// Required returns the names of all fields, in order.
func (s ResponseSchema) Required() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		names = append(names, f.Name)
	}
	return names
}
