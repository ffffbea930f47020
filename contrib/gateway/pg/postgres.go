package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sweetpotato0/auto-concierge/errors"
	"github.com/sweetpotato0/auto-concierge/gateway"
	"github.com/sweetpotato0/auto-concierge/pkg/env"
	"github.com/sweetpotato0/auto-concierge/vehicle"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Table    string
}

// PostgresConfigFromEnv loads PostgreSQL configuration from environment
// variables.
func PostgresConfigFromEnv() *PostgresConfig {
	return &PostgresConfig{
		Host:     env.GetEnv("POSTGRES_HOST", "localhost"),
		Port:     env.GetEnvInt("POSTGRES_PORT", 5432),
		User:     env.GetEnv("POSTGRES_USER", "postgres"),
		Password: env.GetEnv("POSTGRES_PASSWORD", ""),
		DBName:   env.GetEnv("POSTGRES_DB", "auto_concierge"),
		SSLMode:  env.GetEnv("POSTGRES_SSLMODE", "disable"),
		Table:    env.GetEnv("POSTGRES_VEHICLE_TABLE", "vehicles"),
	}
}

// PostgresGateway implements gateway.Gateway on a vehicles table.
type PostgresGateway struct {
	db    *sql.DB
	table string
}

// NewPostgresGateway opens a connection pool against the configured database.
func NewPostgresGateway(config *PostgresConfig) (*PostgresGateway, error) {
	if config == nil {
		config = PostgresConfigFromEnv()
	}
	if config.Table == "" {
		config.Table = "vehicles"
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)
	}

	return &PostgresGateway{db: db, table: config.Table}, nil
}

// Query counts all matches for the filter and fetches a bounded sample,
// cheapest first.
func (g *PostgresGateway) Query(ctx context.Context, filter vehicle.Filter, limit int) (*vehicle.CandidateSet, error) {
	if limit <= 0 {
		limit = gateway.DefaultSampleLimit
	}

	where := "WHERE price >= $1 AND price <= $2"
	args := []interface{}{filter.Price.Min, filter.Price.Max}
	if filter.BodyType != "" {
		args = append(args, filter.BodyType)
		where += fmt.Sprintf(" AND body_type = $%d", len(args))
	}
	if filter.FuelType != "" {
		args = append(args, filter.FuelType)
		where += fmt.Sprintf(" AND fuel_type = $%d", len(args))
	}

	set := &vehicle.CandidateSet{Price: filter.Price}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s %s", g.table, where)
	if err := g.db.QueryRowContext(ctx, countQuery, args...).Scan(&set.TotalCount); err != nil {
		return nil, fmt.Errorf("%w: count query failed: %v", errors.ErrGatewayUnavailable, err)
	}

	args = append(args, limit)
	rowsQuery := fmt.Sprintf(
		"SELECT id, manufacturer, model, year, price, distance, body_type, fuel_type FROM %s %s ORDER BY price ASC LIMIT $%d",
		g.table, where, len(args))
	rows, err := g.db.QueryContext(ctx, rowsQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: sample query failed: %v", errors.ErrGatewayUnavailable, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec vehicle.Record
		if err := rows.Scan(&rec.ID, &rec.Manufacturer, &rec.Model, &rec.Year, &rec.Price, &rec.Distance, &rec.BodyType, &rec.FuelType); err != nil {
			return nil, fmt.Errorf("failed to scan vehicle row: %w", err)
		}
		set.Rows = append(set.Rows, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration failed: %v", errors.ErrGatewayUnavailable, err)
	}
	return set, nil
}

// Close closes the underlying connection pool.
func (g *PostgresGateway) Close() error {
	return g.db.Close()
}
