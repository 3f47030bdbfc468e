package events

// RecordKind classifies battle telemetry published to spectators and replays.
type RecordKind string

const (
	RecordRoundStarted    RecordKind = "round_started"
	RecordFire            RecordKind = "fire"
	RecordFireDropped     RecordKind = "fire_dropped"
	RecordBulletHit       RecordKind = "bullet_hit"
	RecordBulletHitBullet RecordKind = "bullet_hit_bullet"
	RecordBulletMissed    RecordKind = "bullet_missed"
	RecordRam             RecordKind = "ram"
	RecordWallHit         RecordKind = "wall_hit"
	RecordDeath           RecordKind = "death"
	RecordRoundEnded      RecordKind = "round_ended"
	RecordBattleEnded     RecordKind = "battle_ended"
)

// Record is a single entry of battle telemetry. Value carries the kind specific amount:
// bullet power, damage dealt, energy lost or the round winner score.
type Record struct {
	Sequence uint64            `json:"seq"`
	Kind     RecordKind        `json:"kind"`
	Round    int               `json:"round"`
	Turn     int               `json:"turn"`
	Robot    string            `json:"robot,omitempty"`
	Other    string            `json:"other,omitempty"`
	Value    float64           `json:"value,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Clone duplicates the record so subscribers can mutate their copy safely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	if len(r.Metadata) > 0 {
		//1.- Drop empty keys so they never leak to clients.
		clone.Metadata = make(map[string]string, len(r.Metadata))
		for key, value := range r.Metadata {
			if key == "" {
				continue
			}
			clone.Metadata[key] = value
		}
	}
	return &clone
}

// Journal collects telemetry records produced during a turn until they are drained.
type Journal struct {
	records []Record
}

// Add appends a record to the journal.
func (j *Journal) Add(record Record) {
	if j == nil {
		return
	}
	j.records = append(j.records, record)
}

// Drain returns the collected records and empties the journal.
func (j *Journal) Drain() []Record {
	if j == nil || len(j.records) == 0 {
		return nil
	}
	drained := j.records
	j.records = nil
	return drained
}

// Len reports how many records are pending.
func (j *Journal) Len() int {
	if j == nil {
		return 0
	}
	return len(j.records)
}
