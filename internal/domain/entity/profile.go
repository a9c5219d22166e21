package entity

import (
	"strings"
	"time"
)

// ProfileKind profile 类型
type ProfileKind string

const (
	ProfileAcademician   ProfileKind = "academician"
	ProfilePostgraduate  ProfileKind = "postgraduate"
	ProfileUndergraduate ProfileKind = "undergraduate"
)

// AllProfileKinds 全部 profile 类型
var AllProfileKinds = []ProfileKind{ProfileAcademician, ProfilePostgraduate, ProfileUndergraduate}

// ParseProfileKind 解析 profile 类型
func ParseProfileKind(s string) (ProfileKind, bool) {
	k := ProfileKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ProfileAcademician, ProfilePostgraduate, ProfileUndergraduate:
		return k, true
	default:
		return "", false
	}
}

// Profile 可被匹配的学术 profile
type Profile struct {
	ID                    string      `json:"id"`
	Kind                  ProfileKind `json:"-"`
	UserID                string      `json:"user_id"`
	FullName              string      `json:"full_name"`
	Title                 string      `json:"title,omitempty"`
	Institution           string      `json:"university,omitempty"`
	Department            string      `json:"department,omitempty"`
	Bio                   string      `json:"bio,omitempty"`
	Expertise             []string    `json:"research_expertise,omitempty"`
	FieldOfStudy          string      `json:"field_of_study,omitempty"`
	ProfilePicture        string      `json:"profile_picture,omitempty"`
	Verified              bool        `json:"verified"`
	AvailableAsSupervisor bool        `json:"availability_as_supervisor"`
	StyleOfSupervision    []string    `json:"style_of_supervision,omitempty"`
	Embedding             []float32   `json:"-"`
	HasEmbedding          bool        `json:"-"`
	EmbeddingUpdatedAt    *time.Time  `json:"-"`
	CreatedAt             time.Time   `json:"-"`
}

// Ref 返回 profile 引用
func (p *Profile) Ref() ProfileRef {
	return ProfileRef{Kind: p.Kind, ID: p.ID}
}

// EmbeddingText 生成用于向量化的 profile 文本
func (p *Profile) EmbeddingText() string {
	parts := make([]string, 0, 4)
	if len(p.Expertise) > 0 {
		parts = append(parts, "Research expertise: "+strings.Join(p.Expertise, ", "))
	}
	if p.FieldOfStudy != "" {
		parts = append(parts, "Field of study: "+p.FieldOfStudy)
	}
	if p.Department != "" {
		parts = append(parts, "Department: "+p.Department)
	}
	if b := strings.TrimSpace(p.Bio); b != "" {
		parts = append(parts, "Bio: "+b)
	}
	return strings.Join(parts, "\n")
}

// Terms 返回 profile 的关键词集合（研究方向与专业）
func (p *Profile) Terms() []string {
	out := make([]string, 0, len(p.Expertise)+1)
	seen := make(map[string]struct{}, len(p.Expertise)+1)
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, e := range p.Expertise {
		add(e)
	}
	add(p.FieldOfStudy)
	return out
}

// Complete profile 是否有可用于匹配的文本
func (p *Profile) Complete() bool {
	return strings.TrimSpace(p.Bio) != "" || len(p.Expertise) > 0 || p.FieldOfStudy != ""
}

// EmbeddingStale embedding 是否需要刷新
func (p *Profile) EmbeddingStale(updatedAt time.Time) bool {
	if !p.HasEmbedding || len(p.Embedding) == 0 || p.EmbeddingUpdatedAt == nil {
		return true
	}
	return p.EmbeddingUpdatedAt.Before(updatedAt)
}

// ProfileRef profile 引用
type ProfileRef struct {
	Kind ProfileKind `json:"profile_kind"`
	ID   string      `json:"profile_id"`
}

// String 返回 kind:id
func (r ProfileRef) String() string {
	return string(r.Kind) + ":" + r.ID
}
