package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRecordingNotFound is returned when no recording has the requested id.
var ErrRecordingNotFound = errors.New("recording not found")

// Recording is a stored joint trajectory. Frames hold joint angles in
// radians, one row per sample, columns in MotorIDs order.
type Recording struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Geometry  string        `json:"geometry"`
	MotorIDs  []int         `json:"motor_ids"`
	Cadence   time.Duration `json:"cadence_ns"`
	Frames    [][]float64   `json:"frames"`
	CreatedAt time.Time     `json:"created_at"`
}

// RecordingSummary is a Recording without its frames.
type RecordingSummary struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Geometry   string        `json:"geometry"`
	MotorIDs   []int         `json:"motor_ids"`
	Cadence    time.Duration `json:"cadence_ns"`
	FrameCount int           `json:"frame_count"`
	CreatedAt  time.Time     `json:"created_at"`
}

// SaveRecording inserts r, assigning an id and creation time when unset.
func (db *DB) SaveRecording(r *Recording) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	for i, f := range r.Frames {
		if len(f) != len(r.MotorIDs) {
			return fmt.Errorf("frame %d has %d angles for %d motors", i, len(f), len(r.MotorIDs))
		}
	}

	ids, err := json.Marshal(r.MotorIDs)
	if err != nil {
		return fmt.Errorf("failed to encode motor ids: %w", err)
	}
	frames := r.Frames
	if frames == nil {
		frames = [][]float64{}
	}
	data, err := json.Marshal(frames)
	if err != nil {
		return fmt.Errorf("failed to encode frames: %w", err)
	}

	_, err = db.Exec(`INSERT INTO recordings (
			recording_id, name, geometry, motor_ids, cadence_ns, frame_count, frames, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Name, r.Geometry, string(ids), int64(r.Cadence), len(r.Frames), string(data), r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert recording: %w", err)
	}
	return nil
}

// GetRecording loads one recording with its frames.
func (db *DB) GetRecording(id string) (*Recording, error) {
	var (
		r       Recording
		ids     string
		frames  string
		cadence int64
		created int64
	)
	err := db.QueryRow(`SELECT recording_id, name, geometry, motor_ids, cadence_ns, frames, created_at
		FROM recordings WHERE recording_id = ?`, id).
		Scan(&r.ID, &r.Name, &r.Geometry, &ids, &cadence, &frames, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}

	if err := json.Unmarshal([]byte(ids), &r.MotorIDs); err != nil {
		return nil, fmt.Errorf("failed to decode motor ids: %w", err)
	}
	if err := json.Unmarshal([]byte(frames), &r.Frames); err != nil {
		return nil, fmt.Errorf("failed to decode frames: %w", err)
	}
	r.Cadence = time.Duration(cadence)
	r.CreatedAt = time.Unix(0, created)
	return &r, nil
}

// ListRecordings returns every recording, newest first, without frames.
func (db *DB) ListRecordings() ([]RecordingSummary, error) {
	rows, err := db.Query(`SELECT recording_id, name, geometry, motor_ids, cadence_ns, frame_count, created_at
		FROM recordings ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	out := []RecordingSummary{}
	for rows.Next() {
		var (
			s       RecordingSummary
			ids     string
			cadence int64
			created int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &s.Geometry, &ids, &cadence, &s.FrameCount, &created); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		if err := json.Unmarshal([]byte(ids), &s.MotorIDs); err != nil {
			return nil, fmt.Errorf("failed to decode motor ids for %s: %w", s.ID, err)
		}
		s.Cadence = time.Duration(cadence)
		s.CreatedAt = time.Unix(0, created)
		out = append(out, s)
	}
	return out, rows.Err()
}

// RenameRecording changes the display name of a recording.
func (db *DB) RenameRecording(id, name string) error {
	res, err := db.Exec(`UPDATE recordings SET name = ? WHERE recording_id = ?`, name, id)
	if err != nil {
		return fmt.Errorf("failed to rename recording: %w", err)
	}
	return expectOne(res, id)
}

// DeleteRecording removes a recording.
func (db *DB) DeleteRecording(id string) error {
	res, err := db.Exec(`DELETE FROM recordings WHERE recording_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	return expectOne(res, id)
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	return nil
}
