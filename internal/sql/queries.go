package sql

import "embed"

// Migrations holds the idempotent schema migrations, applied in filename order.
//
//go:embed migrations/*.sql
var Migrations embed.FS

//go:embed queries/open_run.sql
var OpenRun string

//go:embed queries/close_run.sql
var CloseRun string
