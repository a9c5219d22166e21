package postgres

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"scholar-match-api/internal/domain/entity"
)

// profileColumns 三类 profile 表共有的列
type profileColumns struct {
	ID                 string           `gorm:"primaryKey;type:varchar(64)"`
	UserID             string           `gorm:"type:varchar(64);not null;uniqueIndex"`
	FullName           string           `gorm:"type:varchar(255)"`
	University         string           `gorm:"type:varchar(255)"`
	Department         string           `gorm:"type:varchar(255)"`
	Bio                string           `gorm:"type:text"`
	ResearchExpertise  pq.StringArray   `gorm:"type:text[]"`
	FieldOfStudy       string           `gorm:"type:varchar(255)"`
	ProfilePicture     string           `gorm:"type:varchar(512)"`
	Embedding          *pgvector.Vector `gorm:"type:vector(1536)"`
	HasEmbedding       bool             `gorm:"not null;default:false;index"`
	EmbeddingUpdatedAt *time.Time
	CreatedAt          time.Time `gorm:"index"`
	UpdatedAt          time.Time
}

// AcademicianModel academicians 表
type AcademicianModel struct {
	profileColumns           `gorm:"embedded"`
	Title                    string         `gorm:"type:varchar(64)"`
	Verified                 bool           `gorm:"not null;default:false;index"`
	AvailabilityAsSupervisor bool           `gorm:"not null;default:false"`
	StyleOfSupervision       pq.StringArray `gorm:"type:text[]"`
}

func (AcademicianModel) TableName() string { return "academicians" }

// PostgraduateModel postgraduates 表
type PostgraduateModel struct {
	profileColumns `gorm:"embedded"`
}

func (PostgraduateModel) TableName() string { return "postgraduates" }

// UndergraduateModel undergraduates 表
type UndergraduateModel struct {
	profileColumns `gorm:"embedded"`
}

func (UndergraduateModel) TableName() string { return "undergraduates" }

// profileRow 跨表读取的统一行结构，非学者表没有的列保持零值
type profileRow struct {
	ID                       string
	UserID                   string
	FullName                 string
	Title                    string
	University               string
	Department               string
	Bio                      string
	ResearchExpertise        pq.StringArray
	FieldOfStudy             string
	ProfilePicture           string
	Verified                 bool
	AvailabilityAsSupervisor bool
	StyleOfSupervision       pq.StringArray
	Embedding                *pgvector.Vector
	HasEmbedding             bool
	EmbeddingUpdatedAt       *time.Time
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

const commonProfileColumns = "id, user_id, full_name, university, department, bio, research_expertise, " +
	"field_of_study, profile_picture, embedding, has_embedding, embedding_updated_at, created_at, updated_at"

const academicianOnlyColumns = ", title, verified, availability_as_supervisor, style_of_supervision"

func profileTable(kind entity.ProfileKind) string {
	switch kind {
	case entity.ProfileAcademician:
		return AcademicianModel{}.TableName()
	case entity.ProfilePostgraduate:
		return PostgraduateModel{}.TableName()
	case entity.ProfileUndergraduate:
		return UndergraduateModel{}.TableName()
	default:
		return ""
	}
}

func profileSelect(kind entity.ProfileKind) string {
	if kind == entity.ProfileAcademician {
		return commonProfileColumns + academicianOnlyColumns
	}
	return commonProfileColumns
}

func (r *profileRow) toEntity(kind entity.ProfileKind) *entity.Profile {
	p := &entity.Profile{
		ID:                    r.ID,
		Kind:                  kind,
		UserID:                r.UserID,
		FullName:              r.FullName,
		Title:                 r.Title,
		Institution:           r.University,
		Department:            r.Department,
		Bio:                   r.Bio,
		Expertise:             []string(r.ResearchExpertise),
		FieldOfStudy:          r.FieldOfStudy,
		ProfilePicture:        r.ProfilePicture,
		Verified:              r.Verified,
		AvailableAsSupervisor: r.AvailabilityAsSupervisor,
		StyleOfSupervision:    []string(r.StyleOfSupervision),
		HasEmbedding:          r.HasEmbedding,
		EmbeddingUpdatedAt:    r.EmbeddingUpdatedAt,
		CreatedAt:             r.CreatedAt,
	}
	if r.Embedding != nil {
		if vec := r.Embedding.Slice(); len(vec) > 0 {
			p.Embedding = vec
		}
	}
	if len(p.Embedding) == 0 {
		p.HasEmbedding = false
	}
	return p
}

// RecommendationJobModel recommendation_jobs 表
type RecommendationJobModel struct {
	ID           string `gorm:"primaryKey;type:uuid"`
	UserID       string `gorm:"type:varchar(64);not null;index:idx_rec_jobs_user_status,priority:1"`
	Role         string `gorm:"type:varchar(32);not null"`
	ProfileID    string `gorm:"type:varchar(64)"`
	Query        string `gorm:"type:text"`
	Status       string `gorm:"type:varchar(16);not null;index:idx_rec_jobs_user_status,priority:2"`
	Progress     int    `gorm:"not null;default:0"`
	Result       []byte `gorm:"type:jsonb"`
	ErrorMessage string `gorm:"type:text"`
	RetryCount   int    `gorm:"not null;default:0"`
	DurationMs   int
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

func (RecommendationJobModel) TableName() string { return "recommendation_jobs" }

func jobFromEntity(j *entity.RecommendationJob) *RecommendationJobModel {
	return &RecommendationJobModel{
		ID:           j.ID,
		UserID:       j.UserID,
		Role:         string(j.Role),
		ProfileID:    j.ProfileID,
		Query:        j.Query,
		Status:       string(j.Status),
		Progress:     j.Progress,
		Result:       []byte(j.Result),
		ErrorMessage: j.ErrorMessage,
		RetryCount:   j.RetryCount,
		DurationMs:   j.DurationMs,
		CreatedAt:    j.CreatedAt,
		UpdatedAt:    j.UpdatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
	}
}

func (m *RecommendationJobModel) toEntity() *entity.RecommendationJob {
	j := &entity.RecommendationJob{
		ID:           m.ID,
		UserID:       m.UserID,
		Role:         entity.Role(m.Role),
		ProfileID:    m.ProfileID,
		Query:        m.Query,
		Status:       entity.JobStatus(m.Status),
		Progress:     m.Progress,
		ErrorMessage: m.ErrorMessage,
		RetryCount:   m.RetryCount,
		DurationMs:   m.DurationMs,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}
	if len(m.Result) > 0 {
		j.Result = json.RawMessage(m.Result)
	}
	return j
}

// SearchHistoryModel ai_search_histories 表
type SearchHistoryModel struct {
	ID          string    `gorm:"primaryKey;type:uuid"`
	UserID      string    `gorm:"type:varchar(64);not null;index"`
	Query       string    `gorm:"type:text;not null"`
	SearchType  string    `gorm:"type:varchar(32);not null"`
	Total       int       `gorm:"not null;default:0"`
	ProfileUsed bool      `gorm:"not null;default:false"`
	ScorePath   string    `gorm:"type:varchar(16)"`
	CreatedAt   time.Time `gorm:"index"`
}

func (SearchHistoryModel) TableName() string { return "ai_search_histories" }

func historyFromEntity(h *entity.SearchHistory) *SearchHistoryModel {
	return &SearchHistoryModel{
		ID:          h.ID,
		UserID:      h.UserID,
		Query:       h.Query,
		SearchType:  string(h.SearchType),
		Total:       h.Total,
		ProfileUsed: h.ProfileUsed,
		ScorePath:   h.ScorePath,
		CreatedAt:   h.CreatedAt,
	}
}

func (m *SearchHistoryModel) toEntity() *entity.SearchHistory {
	return &entity.SearchHistory{
		ID:          m.ID,
		UserID:      m.UserID,
		Query:       m.Query,
		SearchType:  entity.SearchType(m.SearchType),
		Total:       m.Total,
		ProfileUsed: m.ProfileUsed,
		ScorePath:   m.ScorePath,
		CreatedAt:   m.CreatedAt,
	}
}
