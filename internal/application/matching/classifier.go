package matching

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultBaseThreshold     = 0.3
	DefaultSpecificThreshold = 0.5

	// 具体查询的最短长度（字符数，不含）
	specificMinLength = 30
)

// 第一人称/求推荐类短语，命中即视为模糊查询
var vaguePhrases = []string{
	"find supervisor for me",
	"find me a supervisor",
	"supervisor for me",
	"for me",
	"my research",
	"my interests",
	"my interest",
	"my field",
	"my profile",
	"my background",
	"recommend",
	"suggest",
	"match me",
	"suitable for me",
	"someone like me",
	"based on my",
	"relevant to me",
	"best match",
}

// 学科白名单，与之完全相同的查询永远不是模糊查询
var academicFields = []string{
	"biology", "chemistry", "physics", "mathematics", "statistics",
	"computer science", "data science", "artificial intelligence", "machine learning", "deep learning",
	"engineering", "electrical engineering", "mechanical engineering", "civil engineering", "chemical engineering",
	"medicine", "pharmacy", "nursing", "public health",
	"economics", "finance", "accounting", "management", "marketing",
	"psychology", "sociology", "education", "law", "history", "philosophy", "linguistics", "literature",
	"architecture", "agriculture", "environmental science", "geology",
	"biotechnology", "bioinformatics", "neuroscience", "robotics", "cybersecurity",
	"software engineering", "information technology", "nanotechnology", "materials science",
}

// 详细研究意图标记
var specificMarkers = []string{
	"expertise in",
	"methodology for",
	"methodologies for",
	"research on",
	"specializing in",
	"specialising in",
	"specialized in",
	"experience with",
	"focus on",
	"focusing on",
	"framework for",
	"techniques for",
	"approach to",
	"approaches to",
	"applications of",
	"working on",
}

// 学科 + 应用领域的连接词，例如 "machine learning for healthcare"
var appliedConnectors = []string{"for", "in", "applied to"}

var firstPerson = map[string]struct{}{"me": {}, "my": {}, "myself": {}, "mine": {}, "us": {}, "our": {}}

// QueryClass 查询分类结果
type QueryClass struct {
	Normalized string
	Vague      bool
	Specific   bool
	Threshold  float64
}

// Classifier 查询分类器
type Classifier struct {
	baseThreshold     float64
	specificThreshold float64
}

// NewClassifier 创建分类器，阈值非法时使用默认值
func NewClassifier(baseThreshold, specificThreshold float64) *Classifier {
	if baseThreshold <= 0 || baseThreshold > 1 {
		baseThreshold = DefaultBaseThreshold
	}
	if specificThreshold <= 0 || specificThreshold > 1 {
		specificThreshold = DefaultSpecificThreshold
	}
	return &Classifier{baseThreshold: baseThreshold, specificThreshold: specificThreshold}
}

// Classify 分类查询并给出相似度阈值。具体查询优先：阈值取 specific，
// 模糊与普通查询共用 base 阈值。是否回退到请求者 profile 只看 Vague。
func (c *Classifier) Classify(query string) QueryClass {
	q := NormalizeQuery(query)
	qc := QueryClass{
		Normalized: q,
		Vague:      IsVague(q),
		Specific:   IsSpecific(q),
		Threshold:  c.baseThreshold,
	}
	if qc.Specific {
		qc.Threshold = c.specificThreshold
	}
	return qc
}

// NormalizeQuery 小写、去首尾空白并折叠内部空白
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// IsVague 判断查询是否应回退到请求者自己的 profile
func IsVague(query string) bool {
	q := NormalizeQuery(query)
	if q == "" {
		return true
	}
	tokens := tokenize(q)
	if isAcademicField(strings.Join(tokens, " ")) {
		return false
	}
	// 子串匹配，"unrecommended" 也命中 "recommend"
	for _, phrase := range vaguePhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	if len(tokens) <= 2 && utf8.RuneCountInString(q) < 15 && !containsAcademicField(q) {
		return true
	}
	return false
}

// IsSpecific 判断查询是否描述了具体研究方向
func IsSpecific(query string) bool {
	q := NormalizeQuery(query)
	if q == "" {
		return false
	}
	tokens := tokenize(q)
	for _, marker := range specificMarkers {
		if containsPhrase(tokens, marker) {
			return true
		}
	}
	n := utf8.RuneCountInString(q)
	if n > specificMinLength && hasAppliedField(tokens) {
		return true
	}
	return len(strings.Fields(q)) > 5 && n > specificMinLength
}

func isAcademicField(q string) bool {
	for _, f := range academicFields {
		if q == f {
			return true
		}
	}
	return false
}

func containsAcademicField(q string) bool {
	for _, f := range academicFields {
		if strings.Contains(q, f) {
			return true
		}
	}
	return false
}

// tokenize 按非字母数字切分
func tokenize(q string) []string {
	return strings.FieldsFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// containsPhrase 词边界匹配；单词短语允许词干前缀，"focus" 命中 "focused"
func containsPhrase(tokens []string, phrase string) bool {
	want := strings.Fields(phrase)
	if len(want) == 0 || len(want) > len(tokens) {
		return false
	}
	if len(want) == 1 {
		for _, t := range tokens {
			if strings.HasPrefix(t, want[0]) {
				return true
			}
		}
		return false
	}
	for i := 0; i+len(want) <= len(tokens); i++ {
		match := true
		for j, w := range want {
			if tokens[i+j] != w {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// hasAppliedField 学科后接 for/in/applied to 再接非第一人称的应用领域
func hasAppliedField(tokens []string) bool {
	for _, field := range academicFields {
		ft := strings.Fields(field)
		for i := 0; i+len(ft) <= len(tokens); i++ {
			if !equalTokens(tokens[i:i+len(ft)], ft) {
				continue
			}
			rest := tokens[i+len(ft):]
			for _, conn := range appliedConnectors {
				ct := strings.Fields(conn)
				if len(rest) <= len(ct) || !equalTokens(rest[:len(ct)], ct) {
					continue
				}
				if _, pronoun := firstPerson[rest[len(ct)]]; !pronoun {
					return true
				}
			}
		}
	}
	return false
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
