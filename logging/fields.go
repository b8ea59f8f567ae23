package logging

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldEntity     = "entity"
	FieldFile       = "file"
	FieldCount      = "count"
	FieldCreated    = "created"
	FieldSkipped    = "skipped"
	FieldRecord     = "record"
	FieldDriver     = "driver"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldClientIP   = "client_ip"
	FieldRows       = "rows"
	FieldSQL        = "sql"
)

// Components defines standard component names
const (
	ComponentApp   = "app"
	ComponentHTTP  = "http"
	ComponentSeed  = "seed"
	ComponentStore = "store"
	ComponentAuth  = "auth"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpDelete   = "delete"
	OpSeed     = "seed"
	OpMigrate  = "migrate"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
