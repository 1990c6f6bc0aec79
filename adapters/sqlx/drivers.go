package sqlx

// Register the supported database/sql drivers.
import (
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)
