package core

import "github.com/dotcommander/weaver/internal/agent"

func str(desc string) *agent.Schema {
	return &agent.Schema{Type: agent.TypeString, Description: desc}
}

var storyBibleSchema = &agent.Schema{
	Type: agent.TypeObject,
	Properties: map[string]*agent.Schema{
		"characters": {
			Type:        agent.TypeArray,
			Description: "A list of main characters with their profiles.",
			Items: &agent.Schema{
				Type: agent.TypeObject,
				Properties: map[string]*agent.Schema{
					"name":        str("The character's name."),
					"description": str("A detailed description of the character's personality, motivations, and arc."),
				},
				Required: []string{"name", "description"},
			},
		},
		"conflict":      str("The central conflict of the story, including stakes."),
		"setting":       str("The world, its atmosphere, and key locations."),
		"theme":         str("The central theme or message."),
		"voiceAndStyle": str("The narrative voice and overall writing style."),
		"dialogueStyle": str("The style of dialogue."),
		"conclusion":    str("The intended trajectory of the ending."),
		"originality":   str("The unique twist or perspective."),
	},
	Required: []string{"characters", "conflict", "setting", "theme", "voiceAndStyle", "dialogueStyle", "conclusion", "originality"},
}

var outlineSchema = &agent.Schema{
	Type: agent.TypeObject,
	Properties: map[string]*agent.Schema{
		"title":   str("A compelling title for the novel."),
		"summary": str("A brief summary of the entire plot."),
		"chapters": {
			Type:        agent.TypeArray,
			Description: "A list of chapters, each with a title and summary.",
			Items: &agent.Schema{
				Type: agent.TypeObject,
				Properties: map[string]*agent.Schema{
					"chapter_title":   str("The title of the chapter."),
					"chapter_summary": str("A detailed summary of the key events in this chapter."),
				},
				Required: []string{"chapter_title", "chapter_summary"},
			},
		},
	},
	Required: []string{"title", "summary", "chapters"},
}

var continuitySchema = &agent.Schema{
	Type: agent.TypeObject,
	Properties: map[string]*agent.Schema{
		"summary": str("The updated, concise summary of the entire story so far."),
		"identifiedAIisms": {
			Type:        agent.TypeArray,
			Description: "Overused phrases, clichés or repetitive structures found in the new chapter.",
			Items:       &agent.Schema{Type: agent.TypeString},
		},
	},
	Required: []string{"summary", "identifiedAIisms"},
}
