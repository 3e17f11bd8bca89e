package extractor

import (
	"strings"
	"unicode"
)

// isWordRune 单词字符。+ # . 视为单词的一部分，这样 c++、c#、node.js 保持完整，
// 而 java 不会在 javascript 中被匹配到
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' || r == '&'
}

// tokenize 小写化并切分为单词，去掉单词首尾的句点
func tokenize(text string) []string {
	var tokens []string
	var word strings.Builder
	flush := func() {
		w := strings.Trim(word.String(), ".")
		word.Reset()
		if w != "" {
			tokens = append(tokens, w)
		}
	}
	for _, r := range strings.ToLower(text) {
		if isWordRune(r) {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

func phraseKey(surface string) string {
	return strings.Join(tokenize(surface), " ")
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// phraseIndex 短语表：按整词序列匹配；含汉字的短语没有词边界，按子串匹配
type phraseIndex[V any] struct {
	phrases   map[string]V
	maxTokens int
	han       []hanPhrase[V]
}

type hanPhrase[V any] struct {
	needle string
	value  V
}

func newPhraseIndex[V any]() *phraseIndex[V] {
	return &phraseIndex[V]{phrases: make(map[string]V)}
}

// add 注册短语，重复注册时后者覆盖前者
func (p *phraseIndex[V]) add(surface string, value V) {
	if containsHan(surface) {
		needle := strings.ToLower(strings.TrimSpace(surface))
		for i := range p.han {
			if p.han[i].needle == needle {
				p.han[i].value = value
				return
			}
		}
		p.han = append(p.han, hanPhrase[V]{needle: needle, value: value})
		return
	}

	key := phraseKey(surface)
	if key == "" {
		return
	}
	p.phrases[key] = value
	if n := strings.Count(key, " ") + 1; n > p.maxTokens {
		p.maxTokens = n
	}
}

// scan 在文本中查找所有短语，每次命中调用 fn。
// 同一位置优先匹配最长的短语，被匹配的单词不再参与更短的匹配
func (p *phraseIndex[V]) scan(raw string, tokens []string, fn func(V)) {
	for i := 0; i < len(tokens); {
		matched := 0
		for n := min(p.maxTokens, len(tokens)-i); n >= 1; n-- {
			if v, ok := p.phrases[strings.Join(tokens[i:i+n], " ")]; ok {
				fn(v)
				matched = n
				break
			}
		}
		if matched == 0 {
			matched = 1
		}
		i += matched
	}

	if len(p.han) > 0 {
		lower := strings.ToLower(raw)
		for _, h := range p.han {
			if strings.Contains(lower, h.needle) {
				fn(h.value)
			}
		}
	}
}

// contains 文本中是否出现任一短语
func (p *phraseIndex[V]) contains(raw string, tokens []string) bool {
	found := false
	p.scan(raw, tokens, func(V) { found = true })
	return found
}
