package nl2sql

import (
	"fmt"
	"os"
	"strings"
)

// DefaultSchema describes the NYC taxi tables the generator may query.
const DefaultSchema = `You can query these tables in database nyc_taxi:

Table nyc_taxi.yellow_curated columns:
  vendorid int, tpep_pickup_datetime timestamp, tpep_dropoff_datetime timestamp,
  passenger_count int, trip_distance double, ratecodeid int, store_and_fwd_flag string,
  pulocationid int, dolocationid int, payment_type int, fare_amount double, extra double,
  mta_tax double, tip_amount double, tolls_amount double, improvement_surcharge double,
  total_amount double, congestion_surcharge double, airport_fee double,
  year int, month int

Table nyc_taxi.taxi_zone_lookup columns:
  LocationID int, Borough string, Zone string, service_zone string

View nyc_taxi.v_trips_borough_hour columns:
  pickup_hour timestamp, pickup_borough string, dropoff_borough string,
  trip_distance double, passenger_count int, fare_amount double, tip_amount double, total_amount double
`

type fewShot struct {
	Question string
	SQL      string
}

// Date parts use function syntax; "extract(x FROM col)" would read as a table
// reference to the guardrail.
var fewShots = []fewShot{
	{
		Question: "Which pickup borough had the highest average tip percentage on Saturday nights in 2024?",
		SQL: `SELECT zpu.Borough AS pickup_borough,
       AVG(tip_amount / NULLIF(fare_amount, 0)) AS avg_tip_pct
FROM nyc_taxi.yellow_curated y
LEFT JOIN nyc_taxi.taxi_zone_lookup zpu ON y.pulocationid = zpu.LocationID
WHERE y.year = 2024
  AND day_of_week(y.tpep_pickup_datetime) = 6
  AND hour(y.tpep_pickup_datetime) BETWEEN 20 AND 23
  AND fare_amount > 0
GROUP BY zpu.Borough
ORDER BY avg_tip_pct DESC
LIMIT 50`,
	},
	{
		Question: "Show trips and total revenue by hour for Manhattan pickups in July 2024.",
		SQL: `SELECT date_trunc('hour', y.tpep_pickup_datetime) AS hr,
       COUNT(*) AS trips,
       SUM(total_amount) AS revenue
FROM nyc_taxi.yellow_curated y
LEFT JOIN nyc_taxi.taxi_zone_lookup zpu ON y.pulocationid = zpu.LocationID
WHERE y.year = 2024 AND y.month = 7
  AND zpu.Borough = 'Manhattan'
GROUP BY 1
ORDER BY 1
LIMIT 1000`,
	},
}

func systemPrompt(dialect string, rowLimit int) string {
	return fmt.Sprintf(`You are a senior analytics engineer that writes %s SQL for NYC taxi data.
Rules:
- Output ONLY a SQL query. No Markdown, no backticks, no comments.
- READ-ONLY: SELECT queries only. No INSERT/UPDATE/DELETE/CREATE/DROP.
- Add a LIMIT if user didn't provide one (default %d).
- Use the provided schema. If user asks for boroughs, join zone lookup when needed.
- Prefer partition filters (year, month) when time periods are specified.`, dialect, rowLimit)
}

func questionPrompt(dialect, schema, question string) string {
	return "You will write a single " + dialect + " SQL query.\n" +
		"Schema:\n" + schema + "\n\n" +
		"User question:\n" + question + "\n\n" +
		"Return only SQL:"
}

const summarySystemPrompt = "You are a data analyst. Write a crisp, 2-3 sentence insight summary for executives."

// LoadSchema returns the schema description at path, or DefaultSchema when
// path is empty.
func LoadSchema(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultSchema, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read schema file: %w", err)
	}
	schema := strings.TrimSpace(string(raw))
	if schema == "" {
		return "", fmt.Errorf("schema file %q is empty", path)
	}
	return schema, nil
}
