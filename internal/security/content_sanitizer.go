// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はノート本文のHTMLをサニタイズする。
// 共有リンク経由で未認証の閲覧者にも配信されるため、保存前に許可リスト方式で
// 安全なタグと属性のみを残す。
//
// BcryptHasher はクレデンシャルストアのパスワードハッシュをbcryptで生成・照合する。
package security

import (
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// codeLanguageClass はコードブロックのシンタックスハイライト用クラス。
var codeLanguageClass = regexp.MustCompile(`^language-[a-zA-Z0-9+#-]{1,32}$`)

// ContentSanitizerService はHTMLコンテンツのサニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに利用できる。
type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はノート本文向けのContentSanitizerServiceを生成する。
// ポリシーの内容:
//   - 許可タグ: p, br, hr, h1〜h4, ul, ol, li, blockquote, pre, code, strong, em, del, a
//   - codeタグ: language-xxx形式のclassのみ許可
//   - aタグ: http/httpsのhrefのみ許可し、rel="nofollow noreferrer noopener"とtarget="_blank"を付与
//   - script, iframe, style, img等の許可リスト外のタグとon*イベント属性は除去
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr", "h1", "h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)
	p.AllowAttrs("class").Matching(codeLanguageClass).OnElements("code")

	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https")
	p.AllowRelativeURLs(false)
	p.RequireParseableURLs(true)
	p.RequireNoFollowOnLinks(true)
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)

	return &contentSanitizer{
		policy: p,
	}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
