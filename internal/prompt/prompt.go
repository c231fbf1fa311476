// Package prompt assembles the system prompt sent with every request.
package prompt

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/iishyfishyy/calais/internal/hints"
)

// CommandPolicy asks for the structured {command, content, error} answer.
const CommandPolicy = `You may be given a conversational prompt or a request to create a CLI command.

Response format:
Respond with a JSON object with the following fields:
- "command": the command, or null if there is no command.
- "content": the conversation or a command explanation, or null if none.
- "error": the error explanation, or null if there is no error.

Safety:
Do not return any command that may cause harm to the system or data. If the request would
result in an unsafe command, set the error field to "[unsafe command requested]".
Commands that delete or overwrite should include confirmation flags, such as -i for rm.

If the request needs a script rather than a single command line, return a null command and
put the script in the content field. Prefer command lines: pipes, subshells and so on.

JSON notes:
- Begin every response with the character '{'.
- You are talking to an API, not a user. Markdown is not rendered.

Commands:
Translate the request into a precise command that can be run directly in the user's shell.
Pick the most appropriate utility and flags.

- Request: 'list all directories in the current directory' -> 'ls -d */'
- Request: 'find all text files in a directory' -> 'find . -type f -name "*.txt"'

If the command needs values only the user knows, write each one as a placeholder in angle
brackets and reuse the same name for the same value:

- Request: 'search for a file' -> 'find . -name <filename>'
- Request: 'commit' -> 'git commit -m "<message>"'

Use the content field sparingly, for unusual flags only. For conversational prompts, answer in
the content field and leave command null.`

// ChatPolicy is used in chat-only mode.
const ChatPolicy = `You are a concise assistant for command-line users. Answer in plain text without Markdown.`

// Environment describes the machine commands will run on.
type Environment struct {
	OS    string
	Shell string
}

// DetectEnvironment reads the OS and the user's shell.
func DetectEnvironment() Environment {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
		if runtime.GOOS == "windows" {
			shell = "cmd.exe"
		}
	}
	return Environment{OS: runtime.GOOS, Shell: shell}
}

// Builder composes system prompts.
type Builder struct {
	Policy   string // replaces CommandPolicy when set
	Env      Environment
	Hints    *hints.Set
	MaxHints int
}

// System returns the system prompt for a command request.
func (b *Builder) System(request string) string {
	policy := b.Policy
	if strings.TrimSpace(policy) == "" {
		policy = CommandPolicy
	}

	var s strings.Builder
	s.WriteString(policy)
	fmt.Fprintf(&s, "\n\nEnvironment:\n- Operating System: %s\n- Shell: %s\n", b.Env.OS, b.Env.Shell)

	if b.Hints != nil {
		max := b.MaxHints
		if max <= 0 {
			max = 3
		}
		if docs := b.Hints.Match(request, max); len(docs) > 0 {
			s.WriteString("\n")
			s.WriteString(hints.Render(docs))
		}
	}
	return s.String()
}

// Chat returns the system prompt for chat-only mode.
func (b *Builder) Chat() string {
	return fmt.Sprintf("%s\nThe user's OS is %s and their shell is %s.", ChatPolicy, b.Env.OS, b.Env.Shell)
}

// Explain returns the follow-up request asking for an explanation of command.
func Explain(command string) string {
	return fmt.Sprintf("Explain the command `%s`. Return the command in the command field and the explanation in the content field.", command)
}

// LoadPolicy reads a policy file; an empty path yields "".
func LoadPolicy(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read policy file: %w", err)
	}
	return string(data), nil
}
