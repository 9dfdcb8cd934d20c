package pipeline

import (
	"bytes"
	"fmt"
	"text/template"
)

// Prompts holds the text/template sources for every model call. Each
// template is executed with a [promptData] value.
type Prompts struct {
	Transcribe    string `yaml:"transcribe"`
	Detect        string `yaml:"detect"`
	PolishEnglish string `yaml:"polish_english"`
	Translate     string `yaml:"translate"`
	PolishTarget  string `yaml:"polish_target"`
}

// promptData is the template input. Text is the transcript or draft the
// prompt operates on; Target is the output language name.
type promptData struct {
	Text   string
	Target string
}

// DefaultPrompts returns the built-in prompts. The transcription and
// target-language polish prompts keep their Vietnamese wording when the
// target is Vietnamese and otherwise ask in English for a note in the target.
func DefaultPrompts() Prompts {
	return Prompts{
		Transcribe: `{{if eq .Target "Vietnamese"}}` +
			"Tạo một bản phiên âm đầy đủ, chi tiết của đoạn âm thanh này." +
			`{{else}}` +
			"Create a complete, detailed transcript of this audio, in the language that is spoken." +
			`{{end}}`,
		Detect: `Is the following text primarily in English or {{.Target}}? Answer with only the word "English" or "{{.Target}}".` +
			"\n\nText: \"{{.Text}}\"",
		PolishEnglish: "Based on this raw transcript, create a well-formatted and edited note in English. " +
			"Remove filler words, repeated words, and unfinished sentences. " +
			"Correctly format lists or bullet points using markdown. " +
			"Retain the full original content and meaning.\n\nRaw Transcript:\n{{.Text}}",
		Translate: "Translate the following English markdown text to {{.Target}}. " +
			"Preserve all markdown formatting (headings, lists, bold, etc.) perfectly. " +
			"Output only the translated {{.Target}} text.\n\nEnglish Markdown Text:\n{{.Text}}",
		PolishTarget: `{{if eq .Target "Vietnamese"}}` +
			"Dựa vào bản phiên âm thô này, hãy tạo một ghi chép đã được chỉnh sửa và định dạng tốt. " +
			"Loại bỏ các từ đệm (ừm, ờ, kiểu như), các từ lặp lại và các câu nói dang dở. " +
			"Định dạng đúng bất kỳ danh sách hoặc gạch đầu dòng nào. " +
			"Sử dụng định dạng markdown cho tiêu đề, danh sách, v.v. " +
			"Giữ lại toàn bộ nội dung và ý nghĩa ban đầu.\n\nBản phiên âm thô:\n{{.Text}}" +
			`{{else}}` +
			"Using this transcript, write a well-formatted and edited note in {{.Target}}. " +
			"Remove filler words, repeated words, and unfinished sentences. " +
			"Use markdown for headings, lists and bullet points. " +
			"Retain the full original content and meaning. " +
			"Output only the {{.Target}} note.\n\nTranscript:\n{{.Text}}" +
			`{{end}}`,
	}
}

// WithDefaults fills every empty field from DefaultPrompts.
func (p Prompts) WithDefaults() Prompts {
	d := DefaultPrompts()
	if p.Transcribe == "" {
		p.Transcribe = d.Transcribe
	}
	if p.Detect == "" {
		p.Detect = d.Detect
	}
	if p.PolishEnglish == "" {
		p.PolishEnglish = d.PolishEnglish
	}
	if p.Translate == "" {
		p.Translate = d.Translate
	}
	if p.PolishTarget == "" {
		p.PolishTarget = d.PolishTarget
	}
	return p
}

// compiledPrompts is the parsed form of Prompts.
type compiledPrompts struct {
	transcribe    *template.Template
	detect        *template.Template
	polishEnglish *template.Template
	translate     *template.Template
	polishTarget  *template.Template
}

// compile parses all templates, reporting the first one that fails.
func (p Prompts) compile() (*compiledPrompts, error) {
	p = p.WithDefaults()
	var c compiledPrompts
	for _, t := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"transcribe", p.Transcribe, &c.transcribe},
		{"detect", p.Detect, &c.detect},
		{"polish_english", p.PolishEnglish, &c.polishEnglish},
		{"translate", p.Translate, &c.translate},
		{"polish_target", p.PolishTarget, &c.polishTarget},
	} {
		tmpl, err := template.New(t.name).Option("missingkey=error").Parse(t.src)
		if err != nil {
			return nil, fmt.Errorf("pipeline: parse %s prompt: %w", t.name, err)
		}
		*t.dst = tmpl
	}
	return &c, nil
}

// Validate reports whether all templates parse.
func (p Prompts) Validate() error {
	_, err := p.compile()
	return err
}

func render(t *template.Template, data promptData) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("pipeline: render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}
