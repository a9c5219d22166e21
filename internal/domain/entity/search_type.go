package entity

import "strings"

// SearchType 匹配搜索类型
type SearchType string

const (
	SearchSupervisor    SearchType = "supervisor"
	SearchStudents      SearchType = "students"
	SearchCollaborators SearchType = "collaborators"
)

// ParseSearchType 解析搜索类型
func ParseSearchType(s string) (SearchType, bool) {
	t := SearchType(strings.ToLower(strings.TrimSpace(s)))
	switch t {
	case SearchSupervisor, SearchStudents, SearchCollaborators:
		return t, true
	default:
		return "", false
	}
}

// AllowedFor 角色是否可以发起该类型的搜索
func (t SearchType) AllowedFor(role Role) bool {
	switch t {
	case SearchSupervisor:
		return true
	case SearchStudents, SearchCollaborators:
		return role == RoleAcademician
	default:
		return false
	}
}

// ResultKey 响应中候选对象的字段名
func (t SearchType) ResultKey() string {
	switch t {
	case SearchStudents:
		return "student"
	case SearchCollaborators:
		return "collaborator"
	default:
		return "academician"
	}
}

// CandidateKinds 候选 profile 类型，按拼接顺序排列
func (t SearchType) CandidateKinds(studentType ProfileKind) []ProfileKind {
	switch t {
	case SearchStudents:
		if studentType == ProfilePostgraduate || studentType == ProfileUndergraduate {
			return []ProfileKind{studentType}
		}
		return []ProfileKind{ProfilePostgraduate, ProfileUndergraduate}
	case SearchCollaborators:
		return []ProfileKind{ProfileAcademician, ProfilePostgraduate}
	default:
		return []ProfileKind{ProfileAcademician}
	}
}
