// Package preset holds the assistant's prompt texts and completion defaults.
package preset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset is the YAML-configurable persona of the assistant.
type Preset struct {
	Preamble              string  `yaml:"preamble"`
	TranscriptInstruction string  `yaml:"transcriptInstruction"`
	MissingInstruction    string  `yaml:"missingInstruction"`
	Welcome               Welcome `yaml:"welcome"`
	Model                 string  `yaml:"model,omitempty"`
	MaxTokens             int     `yaml:"maxTokens,omitempty"`
}

// Welcome texts shown before the first turn.
type Welcome struct {
	AutoLoaded string `yaml:"autoLoaded"`
	Manual     string `yaml:"manual"`
	// ManualSaved is shown after the user stores a pasted transcript.
	ManualSaved string `yaml:"manualSaved"`
}

// Default returns the built-in preset.
func Default() Preset {
	return Preset{
		Preamble: "You are a friendly and professional educational virtual assistant. " +
			"You help students better understand the content of the educational video. " +
			"Answer clearly, concisely and helpfully. Use a warm but professional tone.",
		TranscriptInstruction: "Answer the user's questions based EXCLUSIVELY on the content of this transcript. " +
			"If the question is not related to the video content, say so kindly and ask whether there is " +
			"something from the video they would like to learn more about.",
		MissingInstruction: "Kindly remind the user to:\n" +
			"1. Open the \"View video transcript\" panel\n" +
			"2. Paste the text of the video transcript\n" +
			"3. Click \"Save transcript\"\n\n" +
			"Explain that without the transcript you cannot give precise answers about the specific content of the video.",
		Welcome: Welcome{
			AutoLoaded:  "Hi! I'm Nexus, your virtual assistant. Ask specific questions about the video content.",
			Manual:      "Hi! I'm your virtual assistant. Paste the video transcript above first so I can help you better.",
			ManualSaved: "Great! I saved the video transcript. I can now answer specific questions about its content. What would you like to know?",
		},
	}
}

// Load reads a YAML preset file and fills unset fields from Default.
// An empty path returns Default.
func Load(path string) (Preset, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("open preset: %w", err)
	}
	defer func() { _ = f.Close() }()

	var doc Preset
	if err := yaml.NewDecoder(f).Decode(&doc); err != nil {
		return p, fmt.Errorf("decode preset: %w", err)
	}
	return p.merge(doc), nil
}

func (p Preset) merge(o Preset) Preset {
	if o.Preamble != "" {
		p.Preamble = o.Preamble
	}
	if o.TranscriptInstruction != "" {
		p.TranscriptInstruction = o.TranscriptInstruction
	}
	if o.MissingInstruction != "" {
		p.MissingInstruction = o.MissingInstruction
	}
	if o.Welcome.AutoLoaded != "" {
		p.Welcome.AutoLoaded = o.Welcome.AutoLoaded
	}
	if o.Welcome.Manual != "" {
		p.Welcome.Manual = o.Welcome.Manual
	}
	if o.Welcome.ManualSaved != "" {
		p.Welcome.ManualSaved = o.Welcome.ManualSaved
	}
	if o.Model != "" {
		p.Model = o.Model
	}
	if o.MaxTokens > 0 {
		p.MaxTokens = o.MaxTokens
	}
	return p
}
