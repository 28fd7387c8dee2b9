package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Usage Errors (TS100-TS119)
	// ============================================

	"TS101": {
		Category: CategoryUsage,
		Message:  "Updater function called without current state",
		Detail:   "A function updater needs the live value it updates. The caller passed a nil current value, which means the table state is wired incorrectly.",
	},
	"TS102": {
		Category: CategoryUsage,
		Message:  "Duplicate column id",
		Detail:   "Two leaf columns share the same id. Column ids must be unique after the column tree is flattened.",
	},
	"TS103": {
		Category: CategoryUsage,
		Message:  "Unknown bucket kind",
		Detail:   "Bucket kinds are \"url\" and \"local\".",
	},
	"TS104": {
		Category: CategoryUsage,
		Message:  "Unknown storage target",
		Detail:   "Storage targets are \"url\", \"localStorage\" and \"none\".",
	},
	"TS105": {
		Category: CategoryUsage,
		Message:  "Key owned by another slice",
		Detail:   "Two state slices were configured to persist under the same bucket key.",
	},
	"TS106": {
		Category: CategoryUsage,
		Message:  "Unknown state slice",
		Detail:   "Slices are pagination, sorting, columnFilters, columnVisibility, globalFilter and rowSelection.",
	},
	"TS107": {
		Category: CategoryUsage,
		Message:  "Unknown column",
		Detail:   "No leaf column with this id is declared for the table.",
	},
	"TS108": {
		Category: CategoryValidation,
		Message:  "Invalid slice payload",
		Detail:   "The request body does not decode into the value of the targeted state slice.",
	},

	// ============================================
	// Storage Errors (TS110-TS119)
	// ============================================

	"TS110": {
		Category: CategoryStorage,
		Message:  "Bucket write failed",
		Detail:   "The underlying store rejected a write.",
	},
	"TS111": {
		Category: CategoryStorage,
		Message:  "Bucket load failed",
		Detail:   "The local bucket backend could not be read.",
	},

	// ============================================
	// Configuration Errors (TS120-TS139)
	// ============================================

	"TS120": {
		Category: CategoryConfig,
		Message:  "Invalid configuration",
		Detail:   "The tablestate.json configuration file is invalid.",
	},
	"TS121": {
		Category: CategoryConfig,
		Message:  "Unknown filter variant",
		Detail:   "Filter variants are text, number, date, select, multiSelect, numberRange and dateRange.",
	},
	"TS122": {
		Category: CategoryConfig,
		Message:  "Invalid page size allow-list",
		Detail:   "Allowed page sizes must be positive integers.",
	},
	"TS123": {
		Category: CategoryConfig,
		Message:  "Unknown table",
		Detail:   "No table with this name is declared in the configuration.",
	},

	// ============================================
	// CLI Errors (TS140-TS159)
	// ============================================

	"TS140": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		Detail:   "The command arguments are invalid.",
	},
	"TS141": {
		Category: CategoryCLI,
		Message:  "Config not found",
		Detail:   "No tablestate.json found.",
	},
	"TS142": {
		Category: CategoryCLI,
		Message:  "Unknown local backend",
		Detail:   "Local backends are memory, file, s3 and redis.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
