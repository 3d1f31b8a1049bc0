package types

import "time"

// Envelope is the sync metadata carried by every syncable entity.
type Envelope struct {
	LocalID    string     `json:"local_id"`
	ServerID   *string    `json:"server_id,omitempty"`
	SyncStatus SyncStatus `json:"sync_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	DeviceID   string     `json:"device_id"`
	Version    int64      `json:"version"`
}

// Envelope column names, shared by every domain table.
const (
	ColLocalID    = "local_id"
	ColServerID   = "server_id"
	ColSyncStatus = "sync_status"
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
	ColDeletedAt  = "deleted_at"
	ColDeviceID   = "device_id"
	ColVersion    = "version"
)

// EnvelopeColumns lists the envelope columns in table order.
var EnvelopeColumns = []string{
	ColLocalID, ColServerID, ColSyncStatus, ColCreatedAt,
	ColUpdatedAt, ColDeletedAt, ColDeviceID, ColVersion,
}

// IsDeleted reports whether the entity carries a tombstone.
func (e Envelope) IsDeleted() bool {
	return e.DeletedAt != nil
}

func (e Envelope) record() Record {
	r := Record{
		ColLocalID:    e.LocalID,
		ColSyncStatus: string(e.SyncStatus),
		ColCreatedAt:  FormatTime(e.CreatedAt),
		ColUpdatedAt:  FormatTime(e.UpdatedAt),
		ColDeletedAt:  formatTimePtr(e.DeletedAt),
		ColDeviceID:   e.DeviceID,
		ColVersion:    e.Version,
	}
	if e.ServerID != nil {
		r[ColServerID] = *e.ServerID
	} else {
		r[ColServerID] = nil
	}
	return r
}

// EnvelopeFromRecord extracts the sync envelope from a stored row.
func EnvelopeFromRecord(r Record) Envelope {
	return Envelope{
		LocalID:    r.String(ColLocalID),
		ServerID:   r.StringPtr(ColServerID),
		SyncStatus: SyncStatus(r.String(ColSyncStatus)),
		CreatedAt:  r.Time(ColCreatedAt),
		UpdatedAt:  r.Time(ColUpdatedAt),
		DeletedAt:  r.TimePtr(ColDeletedAt),
		DeviceID:   r.String(ColDeviceID),
		Version:    r.Int(ColVersion),
	}
}

// User is the owner of scans and notifications.
type User struct {
	Envelope
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// Record converts u to its stored form.
func (u User) Record() Record {
	r := u.Envelope.record()
	r["email"] = u.Email
	r["display_name"] = u.DisplayName
	r["avatar_url"] = u.AvatarURL
	return r
}

// UserFromRecord builds a User from a stored row.
func UserFromRecord(r Record) User {
	return User{
		Envelope:    EnvelopeFromRecord(r),
		Email:       r.String("email"),
		DisplayName: r.String("display_name"),
		AvatarURL:   r.String("avatar_url"),
	}
}

// Scan is a captured plant image awaiting or holding a diagnosis.
type Scan struct {
	Envelope
	UserLocalID string    `json:"user_local_id"`
	ImagePath   string    `json:"image_path"`
	ImageURL    string    `json:"image_url"`
	PlantName   string    `json:"plant_name"`
	Notes       string    `json:"notes"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// Record converts s to its stored form.
func (s Scan) Record() Record {
	r := s.Envelope.record()
	r["user_local_id"] = s.UserLocalID
	r["image_path"] = s.ImagePath
	r["image_url"] = s.ImageURL
	r["plant_name"] = s.PlantName
	r["notes"] = s.Notes
	r["latitude"] = floatPtr(s.Latitude)
	r["longitude"] = floatPtr(s.Longitude)
	r["captured_at"] = formatTimePtr(&s.CapturedAt)
	return r
}

// ScanFromRecord builds a Scan from a stored row.
func ScanFromRecord(r Record) Scan {
	return Scan{
		Envelope:    EnvelopeFromRecord(r),
		UserLocalID: r.String("user_local_id"),
		ImagePath:   r.String("image_path"),
		ImageURL:    r.String("image_url"),
		PlantName:   r.String("plant_name"),
		Notes:       r.String("notes"),
		Latitude:    r.FloatPtr("latitude"),
		Longitude:   r.FloatPtr("longitude"),
		CapturedAt:  r.Time("captured_at"),
	}
}

// Diagnosis is the classification result attached to a Scan.
type Diagnosis struct {
	Envelope
	ScanLocalID  string  `json:"scan_local_id"`
	DiseaseName  string  `json:"disease_name"`
	Confidence   float64 `json:"confidence"`
	Severity     string  `json:"severity"`
	Treatment    string  `json:"treatment"`
	ModelVersion string  `json:"model_version"`
}

// Record converts d to its stored form.
func (d Diagnosis) Record() Record {
	r := d.Envelope.record()
	r["scan_local_id"] = d.ScanLocalID
	r["disease_name"] = d.DiseaseName
	r["confidence"] = d.Confidence
	r["severity"] = d.Severity
	r["treatment"] = d.Treatment
	r["model_version"] = d.ModelVersion
	return r
}

// DiagnosisFromRecord builds a Diagnosis from a stored row.
func DiagnosisFromRecord(r Record) Diagnosis {
	return Diagnosis{
		Envelope:     EnvelopeFromRecord(r),
		ScanLocalID:  r.String("scan_local_id"),
		DiseaseName:  r.String("disease_name"),
		Confidence:   r.Float("confidence"),
		Severity:     r.String("severity"),
		Treatment:    r.String("treatment"),
		ModelVersion: r.String("model_version"),
	}
}

// Tip is server-authored plant care advice. Bookmarking is a local edit.
type Tip struct {
	Envelope
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Category     string     `json:"category"`
	PlantType    string     `json:"plant_type"`
	IsBookmarked bool       `json:"is_bookmarked"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
}

// Record converts t to its stored form.
func (t Tip) Record() Record {
	r := t.Envelope.record()
	r["title"] = t.Title
	r["body"] = t.Body
	r["category"] = t.Category
	r["plant_type"] = t.PlantType
	r["is_bookmarked"] = boolInt(t.IsBookmarked)
	r["published_at"] = formatTimePtr(t.PublishedAt)
	return r
}

// TipFromRecord builds a Tip from a stored row.
func TipFromRecord(r Record) Tip {
	return Tip{
		Envelope:     EnvelopeFromRecord(r),
		Title:        r.String("title"),
		Body:         r.String("body"),
		Category:     r.String("category"),
		PlantType:    r.String("plant_type"),
		IsBookmarked: r.Bool("is_bookmarked"),
		PublishedAt:  r.TimePtr("published_at"),
	}
}

// Notification is a server-authored message for a user. Read state is a
// local edit pushed back to the server.
type Notification struct {
	Envelope
	UserLocalID string     `json:"user_local_id"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Kind        string     `json:"kind"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Record converts n to its stored form.
func (n Notification) Record() Record {
	r := n.Envelope.record()
	r["user_local_id"] = n.UserLocalID
	r["title"] = n.Title
	r["body"] = n.Body
	r["kind"] = n.Kind
	r["is_read"] = boolInt(n.IsRead)
	r["read_at"] = formatTimePtr(n.ReadAt)
	return r
}

// NotificationFromRecord builds a Notification from a stored row.
func NotificationFromRecord(r Record) Notification {
	return Notification{
		Envelope:    EnvelopeFromRecord(r),
		UserLocalID: r.String("user_local_id"),
		Title:       r.String("title"),
		Body:        r.String("body"),
		Kind:        r.String("kind"),
		IsRead:      r.Bool("is_read"),
		ReadAt:      r.TimePtr("read_at"),
	}
}

func floatPtr(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
