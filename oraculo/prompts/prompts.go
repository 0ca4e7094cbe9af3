// Package prompts holds the assistant persona used to ground every session.
package prompts

import (
	"fmt"
	"strings"

	"oraculo/oraculo/types"
	"oraculo/oraculo/utils/logging"

	"github.com/magiconair/properties"
	"go.uber.org/zap"
)

const (
	DefaultAssistantName = "Oráculo"

	defaultSystemTemplate = "You are %[1]s, a friendly assistant. Use the document context (%[2]s) given in the first user message of the history only when it is relevant to the question. " +
		"Be clear and concise and replace any $ symbol with S in your output. " +
		"If the content looks like a notice such as \"Just a moment...Enable JavaScript and cookies to continue\", tell the user to reload %[1]s."

	defaultDocumentInstruction = "Use this content only if the user's question needs information contained in it."
)

// Persona renders the system prompt and the document-context instruction.
type Persona struct {
	AssistantName       string
	SystemTemplate      string
	DocumentInstruction string
}

func Default() *Persona {
	return &Persona{
		AssistantName:       DefaultAssistantName,
		SystemTemplate:      defaultSystemTemplate,
		DocumentInstruction: defaultDocumentInstruction,
	}
}

// Load reads a properties file; an empty path or unreadable file yields the defaults.
func Load(path string) *Persona {
	p := Default()
	if path == "" {
		return p
	}
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		logging.AppLogger.Error("persona load error, using defaults", zap.String("path", path), zap.Error(err))
		return p
	}
	return fromProperties(props)
}

func fromProperties(props *properties.Properties) *Persona {
	d := Default()
	return &Persona{
		AssistantName:       props.GetString("assistant_name", d.AssistantName),
		SystemTemplate:      props.GetString("system_prompt_template", d.SystemTemplate),
		DocumentInstruction: props.GetString("document_instruction", d.DocumentInstruction),
	}
}

// SystemPrompt is the instruction sent with every model call of a session.
func (p *Persona) SystemPrompt(docType types.DocumentType) string {
	tmpl := p.SystemTemplate
	// templates written with a single %s only take the document type
	if strings.Count(tmpl, "%") == 1 && strings.Contains(tmpl, "%s") {
		return fmt.Sprintf(tmpl, docType.Label())
	}
	return fmt.Sprintf(tmpl, p.AssistantName, docType.Label())
}
