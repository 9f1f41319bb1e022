package database

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options are the connection settings for the bookings database.
type Options struct {
	User, Pass, Host, Port, Name string
	// LockWait bounds how long a statement waits for a row lock before
	// MySQL fails it with error 1205.
	LockWait time.Duration
}

// DSN builds the go-sql-driver DSN.  Unknown parameters are sent by the
// driver as session variables, which is how innodb_lock_wait_timeout is set
// on every pooled connection.
func (o Options) DSN() string {
	auth := o.User
	if o.Pass != "" {
		auth = fmt.Sprintf("%s:%s", o.User, o.Pass)
	}
	params := url.Values{}
	params.Set("charset", "utf8mb4")
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	params.Set("parseTime", "true")
	params.Set("loc", "UTC")
	if o.LockWait > 0 {
		secs := int(o.LockWait / time.Second)
		if secs < 1 {
			secs = 1
		}
		params.Set("innodb_lock_wait_timeout", strconv.Itoa(secs))
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?%s", auth, o.Host, o.Port, o.Name, params.Encode())
}

// Open connects to MySQL and verifies the connection.
func Open(o Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", o.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
