// Package entity 定义领域实体
package entity

import (
	"context"
	"strings"
)

// Role 请求者角色，每个请求只解析一次
type Role string

const (
	RoleAcademician   Role = "academician"
	RolePostgraduate  Role = "postgraduate"
	RoleUndergraduate Role = "undergraduate"
	RoleGuest         Role = "guest"
)

// ParseRole 解析角色字符串，无法识别时返回 RoleGuest
func ParseRole(s string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAcademician:
		return RoleAcademician
	case RolePostgraduate:
		return RolePostgraduate
	case RoleUndergraduate:
		return RoleUndergraduate
	default:
		return RoleGuest
	}
}

// ProfileKind 角色对应的 profile 类型，guest 没有 profile
func (r Role) ProfileKind() (ProfileKind, bool) {
	switch r {
	case RoleAcademician:
		return ProfileAcademician, true
	case RolePostgraduate:
		return ProfilePostgraduate, true
	case RoleUndergraduate:
		return ProfileUndergraduate, true
	default:
		return "", false
	}
}

// IsStudent 是否学生角色
func (r Role) IsStudent() bool {
	return r == RolePostgraduate || r == RoleUndergraduate
}

// Requester 已认证的请求者
type Requester struct {
	UserID    string
	Role      Role
	ProfileID string
	Admin     bool
}

// Anonymous 未携带身份的请求者
func Anonymous() Requester {
	return Requester{Role: RoleGuest}
}

type requesterCtxKey struct{}

// WithRequester 将请求者写入 context
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterCtxKey{}, r)
}

// RequesterFromContext 读取请求者
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	if ctx == nil {
		return Anonymous(), false
	}
	r, ok := ctx.Value(requesterCtxKey{}).(Requester)
	if !ok {
		return Anonymous(), false
	}
	return r, true
}
