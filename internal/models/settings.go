package models

// CustomModelSentinel is the embeddingModel value that selects CustomModel.
const CustomModelSentinel = "custom"

// Settings are the user-editable settings kept in local persistence.
type Settings struct {
	OllamaURL      string `json:"ollamaUrl"`
	ChromaURL      string `json:"chromaUrl"`
	EmbeddingModel string `json:"embeddingModel"`
	CustomModel    string `json:"customModel"`
	CollectionName string `json:"collectionName"`
}

// Model returns the tagged model choice described by the settings.
func (s Settings) Model() ModelChoice {
	if s.EmbeddingModel == CustomModelSentinel {
		return CustomModel(s.CustomModel)
	}
	return PresetModel(s.EmbeddingModel)
}

// SetModel stores choice back into the flat settings fields.
func (s *Settings) SetModel(choice ModelChoice) {
	if choice.IsCustom() {
		s.EmbeddingModel = CustomModelSentinel
		s.CustomModel = choice.Name()
		return
	}
	s.EmbeddingModel = choice.Name()
}

type modelKind int

const (
	modelPreset modelKind = iota
	modelCustom
)

// ModelChoice is either a preset model name or a user-typed custom one.
type ModelChoice struct {
	kind modelKind
	name string
}

// PresetModel selects one of the listed models by name.
func PresetModel(name string) ModelChoice { return ModelChoice{kind: modelPreset, name: name} }

// CustomModel selects a free-form model name.
func CustomModel(name string) ModelChoice { return ModelChoice{kind: modelCustom, name: name} }

// Name returns the model identifier to send to the embedding service.
func (m ModelChoice) Name() string { return m.name }

// IsCustom reports whether the choice was typed by the user.
func (m ModelChoice) IsCustom() bool { return m.kind == modelCustom }

func (m ModelChoice) String() string {
	if m.IsCustom() {
		return "custom(" + m.name + ")"
	}
	return m.name
}

// SelectionKind names one of the two independent collection selections.
type SelectionKind string

const (
	SelectionCapture SelectionKind = "capture"
	SelectionSearch  SelectionKind = "search"
)

// Valid reports whether k is a known selection kind.
func (k SelectionKind) Valid() bool {
	return k == SelectionCapture || k == SelectionSearch
}
