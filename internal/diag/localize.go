package diag

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// defaultMessages are the built-in texts for the runtime's message ids.
var defaultMessages = map[string]string{
	"Loader:LoadPlugins":      "load plugins",
	"Loader:LoadFiles":        "load plugin files",
	"Loader:Initialize":       "initialize plugins",
	"Loader:UnloadAll":        "unload all plugins",
	"Loader:Loaded":           "plugin loaded",
	"Loader:AlreadyLoaded":    "plugin already loaded",
	"Loader:LoadFailed":       "plugin load failed",
	"Loader:ClassRejected":    "class registration rejected",
	"Loader:Initialized":      "plugin initialized",
	"Loader:InitFailed":       "plugin initialization failed",
	"Loader:Unloaded":         "plugin unloaded",
	"Loader:UnloadRefused":    "plugin unload refused",
	"Loader:CloseFailed":      "plugin image close failed",
	"Loader:NoFiles":          "no plugin files found",
	"Loader:ScanFailed":       "plugin directory scan failed",
	"Watcher:NewFile":         "new plugin file detected",
	"Watcher:Error":           "plugin watcher error",
	"Script:Log":              "script module",
	"Host:Started":            "host started",
	"Host:Stopped":            "host stopped",
	"Host:InstanceCreated":    "instance created",
	"Host:InstanceReleased":   "instance released",
	"Host:CreateFailed":       "instance creation failed",
	"Host:Shutdown":           "shutdown",
	"Host:ModulesStillLoaded": "modules still loaded at shutdown",
}

// Localizer translates message identifiers of the form "@Module:StrID".
// Text that does not start with '@' is returned unchanged; an unknown id is
// returned without its '@'.
type Localizer struct {
	tag     language.Tag
	printer *message.Printer
}

// NewLocalizer builds a localizer for locale. overrides replace or extend
// the built-in texts; keys are ids without the leading '@'.
func NewLocalizer(locale string, overrides map[string]string) *Localizer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}

	b := catalog.NewBuilder(catalog.Fallback(tag))
	for id, text := range defaultMessages {
		_ = b.SetString(tag, id, text)
	}
	for id, text := range overrides {
		_ = b.SetString(tag, strings.TrimPrefix(id, "@"), text)
	}

	return &Localizer{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(b)),
	}
}

// Tag returns the language of the localizer.
func (l *Localizer) Tag() language.Tag {
	return l.tag
}

// Translate resolves msg if it is a message id.
func (l *Localizer) Translate(msg string) string {
	if l == nil || !strings.HasPrefix(msg, "@") {
		return msg
	}
	id := msg[1:]
	return l.printer.Sprintf(message.Key(id, id))
}
