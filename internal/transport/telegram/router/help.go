package router

import (
	"html"
	"strings"
)

// helpText renders help in Telegram HTML. With args it describes one command.
func (m *CommandManager) helpText(args []string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(args) > 0 {
		name := sanitizeTelegramCommand(args[0])
		c, ok := m.cmds[name]
		if !ok {
			return strings.Join([]string{
				"❓ <b>Unknown command</b>",
				"Type <code>/help</code> to list the commands.",
			}, "\n")
		}
		return commandHelp(c)
	}

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;command&gt;</code> for details.",
		"",
	}
	for _, c := range m.listed {
		line := "/" + html.EscapeString(c.Name)
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		lines = append(lines, line)
	}
	if m.text != nil {
		lines = append(lines, "",
			"<b>Notes</b>",
			"Send any text to save it as a note. Add <code>#tags</code> to categorize it.",
			"Add <code>@HH:MM DD-MM-YYYY</code> or <code>@DD-MM-YYYY</code> to get a reminder.",
		)
	}
	return strings.Join(lines, "\n")
}

func commandHelp(c *Command) string {
	lines := []string{"ℹ️ <b>/" + html.EscapeString(c.Name) + "</b>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "Usage: <code>"+html.EscapeString(u)+"</code>")
	}
	if len(c.Aliases) > 0 {
		al := make([]string, 0, len(c.Aliases))
		for _, a := range c.Aliases {
			al = append(al, "/"+html.EscapeString(a))
		}
		lines = append(lines, "Aliases: "+strings.Join(al, ", "))
	}
	return strings.Join(lines, "\n")
}
