package storage

import (
	"fmt"
	"strconv"
	"strings"

	"flight-scraper/models"
)

// dialect hides the SQL differences between postgres and sqlite.
type dialect struct {
	name       string
	idColumn   string
	insertVerb string
	onConflict string
	numbered   bool
}

var (
	postgresDialect = dialect{
		name:       "postgres",
		idColumn:   "id SERIAL PRIMARY KEY",
		insertVerb: "INSERT INTO",
		onConflict: " ON CONFLICT DO NOTHING",
		numbered:   true,
	}
	sqliteDialect = dialect{
		name:       "sqlite",
		idColumn:   "id INTEGER PRIMARY KEY AUTOINCREMENT",
		insertVerb: "INSERT OR IGNORE INTO",
	}
)

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return postgresDialect, nil
	case "sqlite":
		return sqliteDialect, nil
	default:
		return dialect{}, fmt.Errorf("storage: unsupported driver %q", driver)
	}
}

// rebind rewrites ? placeholders into $N for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// flightColumns are the insertable columns in bind order.
var flightColumns = []string{
	"price", "depart_time", "arrival_time", "depart_date",
	"arrival_airport", "departure_airport", "airlines", "num_stops", "is_round_trip",
}

func (d dialect) schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS flights (
			` + d.idColumn + `,
			price             VARCHAR(30),
			depart_time       VARCHAR(30),
			arrival_time      VARCHAR(30),
			depart_date       VARCHAR(64),
			arrival_airport   VARCHAR(64),
			departure_airport VARCHAR(64),
			airlines          VARCHAR(128),
			num_stops         INTEGER,
			is_round_trip     BOOLEAN
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_route ON flights(departure_airport, arrival_airport)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_route_date ON flights(departure_airport, arrival_airport, depart_date)`,
		`CREATE TABLE IF NOT EXISTS empty_days (
			departure_airport VARCHAR(64) NOT NULL,
			arrival_airport   VARCHAR(64) NOT NULL,
			depart_date       VARCHAR(64) NOT NULL,
			PRIMARY KEY (departure_airport, arrival_airport, depart_date)
		)`,
	}
}

func (d dialect) markEmptyDay() string {
	return d.rebind(d.insertVerb +
		` empty_days (departure_airport, arrival_airport, depart_date) VALUES (?, ?, ?)` + d.onConflict)
}

// routesQuery lists stored routes, including routes known only from the
// empty_days ledger when withEmpty is set.
func (d dialect) routesQuery(withEmpty bool) string {
	q := `SELECT DISTINCT departure_airport, arrival_airport FROM flights WHERE departure_airport <> ''`
	if withEmpty {
		q += ` UNION SELECT departure_airport, arrival_airport FROM empty_days`
	}
	return q + ` ORDER BY 1, 2`
}

// datesQuery selects the distinct dates of one route. It binds the route
// once, or twice when withEmpty is set.
func (d dialect) datesQuery(withEmpty bool) string {
	q := `SELECT DISTINCT depart_date FROM flights
		WHERE departure_airport = ? AND arrival_airport = ? AND depart_date IS NOT NULL`
	if withEmpty {
		q += ` UNION SELECT depart_date FROM empty_days WHERE departure_airport = ? AND arrival_airport = ?`
	}
	return q
}

func (d dialect) dateCountQuery(withEmpty bool) string {
	return d.rebind(`SELECT COUNT(*) FROM (` + d.datesQuery(withEmpty) + `) AS dates`)
}

func (d dialect) sortedDatesQuery(withEmpty bool) string {
	return d.rebind(d.datesQuery(withEmpty) + ` ORDER BY 1`)
}

func routeArgs(route models.Route, withEmpty bool) []interface{} {
	args := []interface{}{route.Origin, route.Destination}
	if withEmpty {
		args = append(args, route.Origin, route.Destination)
	}
	return args
}

func (d dialect) uniquePolicy(enforce bool) string {
	if enforce {
		return `CREATE UNIQUE INDEX IF NOT EXISTS ` + UniqueConstraintName +
			` ON flights(depart_time, arrival_time, price, depart_date, airlines)`
	}
	return `DROP INDEX IF EXISTS ` + UniqueConstraintName
}

// insertStatement builds a multi-row insert for n records.
func (d dialect) insertStatement(n int) string {
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", len(flightColumns)), ",") + ")"
	rows := make([]string, n)
	for i := range rows {
		rows[i] = row
	}
	return d.rebind(fmt.Sprintf("%s flights (%s) VALUES %s%s",
		d.insertVerb, strings.Join(flightColumns, ", "), strings.Join(rows, ","), d.onConflict))
}
