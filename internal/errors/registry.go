package errors

import "sort"

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Configuration Errors (S100-S199)
	// ============================================

	"S100": {
		Category: CategoryConfig,
		Message:  "Configuration file not readable",
		Detail:   "The configuration file could not be opened or read.",
	},
	"S101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "A configuration value is out of range or inconsistent with another value.",
	},
	"S102": {
		Category: CategoryConfig,
		Message:  "Malformed configuration file",
		Detail:   "The configuration file is not valid JSON.",
	},
	"S103": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A STOREFRONT_* environment variable could not be parsed.",
	},

	// ============================================
	// Runtime Errors (S200-S299)
	// ============================================

	"S200": {
		Category: CategoryRuntime,
		Message:  "Server failed to start",
		Detail:   "The HTTP listener could not be opened. Another process may be using the port.",
	},
	"S201": {
		Category: CategoryRuntime,
		Message:  "Shutdown did not complete",
		Detail:   "Sessions or HTTP connections were still open when the shutdown timeout elapsed.",
	},

	// ============================================
	// Storage Errors (S300-S399)
	// ============================================

	"S300": {
		Category: CategoryStorage,
		Message:  "Session store unavailable",
		Detail:   "The session database could not be opened or its schema could not be created.",
	},
	"S301": {
		Category: CategoryStorage,
		Message:  "Catalog unavailable",
		Detail:   "The product database could not be opened, migrated or seeded.",
	},

	// ============================================
	// CLI Errors (S400-S499)
	// ============================================

	"S400": {
		Category: CategoryCLI,
		Message:  "Configuration file already exists",
		Detail:   "init refuses to overwrite an existing configuration file.",
	},
}

// GetAllCodes returns all registered error codes in sorted order.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces an error template.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
