package curriculum

// Subject is one entry of the subject catalog.
type Subject struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// catalogFile is the on-disk shape of a catalog YAML file.
type catalogFile struct {
	Subjects []Subject `yaml:"subjects"`
}

// Metadata is the subject, unit and topic inferred for a document.
type Metadata struct {
	Subject string `json:"subject"`
	Unit    string `json:"unit"`
	Topic   string `json:"topic"`
}
