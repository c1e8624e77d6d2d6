package storage

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

// Indexes are created once bulk inserts are done, on Close.
const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_nodes_session ON nodes (session_id, col);
CREATE INDEX IF NOT EXISTS idx_aligned_rows_session ON aligned_rows (session_id, seq);
CREATE INDEX IF NOT EXISTS idx_aligned_rows_time ON aligned_rows (session_id, timestamp_ns);`

const (
	insertSessionSQL = `
INSERT INTO sessions (run_id,
                      name,
                      dir,
                      flight_log,
                      processed_at,
                      origin_lat,
                      origin_lon,
                      range_min,
                      range_max,
                      degenerate,
                      three_d,
                      config)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectSessionColumns = `
SELECT id,
       run_id,
       name,
       dir,
       flight_log,
       processed_at,
       origin_lat,
       origin_lon,
       range_min,
       range_max,
       degenerate,
       three_d,
       config
FROM sessions`

	selectSessionSQL = selectSessionColumns + `
WHERE id = ?`

	selectSessionsSQL = selectSessionColumns + `
ORDER BY processed_at, id`

	insertNodeSQL = `
INSERT INTO nodes (session_id,
                   col,
                   node_id,
                   latitude,
                   longitude,
                   x,
                   y,
                   row_count,
                   retained,
                   usable,
                   duplicates,
                   malformed,
                   points,
                   min_value,
                   max_value,
                   mean_value,
                   closest_m,
                   closest_ns)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectNodesSQL = `
SELECT col,
       node_id,
       latitude,
       longitude,
       x,
       y,
       row_count,
       retained,
       usable,
       duplicates,
       malformed,
       points,
       min_value,
       max_value,
       mean_value,
       closest_m,
       closest_ns
FROM nodes
WHERE session_id = ?
ORDER BY col`

	insertRowSQL = `
INSERT INTO aligned_rows (session_id,
                          seq,
                          timestamp_ns,
                          latitude,
                          longitude,
                          altitude,
                          x,
                          y,
                          matched_ns,
                          max_concern)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertValueSQL = `
INSERT INTO aligned_values (row_id, col, value)
VALUES (?, ?, ?)`

	selectRowsSQL = `
SELECT r.seq,
       r.timestamp_ns,
       r.latitude,
       r.longitude,
       r.altitude,
       r.x,
       r.y,
       r.matched_ns,
       r.max_concern,
       v.col,
       v.value
FROM aligned_rows r
         LEFT JOIN aligned_values v ON v.row_id = r.id
WHERE r.session_id = ?
  AND r.timestamp_ns BETWEEN ? AND ?
ORDER BY r.seq, v.col`

	countNodesSQL = `
SELECT COUNT(*)
FROM nodes
WHERE session_id = ?`

	selectRowBoundsSQL = `
SELECT COALESCE(MIN(timestamp_ns), 0),
       COALESCE(MAX(timestamp_ns), 0),
       COUNT(*)
FROM aligned_rows
WHERE session_id = ?`
)
