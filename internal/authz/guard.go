// Package authz はノート単位の所有者認可を提供する。
//
// 判定はノート全体に対して行い、フィールド単位の認可は行わない。
// 所有者のノート一覧はストアのクエリで所有者IDに絞り込むため、このパッケージを経由しない。
package authz

import (
	"github.com/hitoshi/notekeep/internal/model"
)

// Operation はノートに対する操作種別を表す。
type Operation string

const (
	// OpRead はノートの閲覧。
	OpRead Operation = "read"
	// OpUpdate はノートの更新。
	OpUpdate Operation = "update"
	// OpDelete はノートの削除。
	OpDelete Operation = "delete"
	// OpShare は共有トークンの発行。
	OpShare Operation = "share"
)

// Decision は認可判定の結果を表す。ゼロ値はDeny。
type Decision int

const (
	// Deny は操作を拒否する。
	Deny Decision = iota
	// Allow は操作を許可する。
	Allow
)

// String はDecisionの文字列表現を返す。
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// DecisionRecorder は認可判定の記録インターフェース。
// metrics.Collectorが実装する。
type DecisionRecorder interface {
	RecordAuthzDecision(operation string, decision string)
}

// Guard はノートの所有者認可を行う。I/Oは行わず、渡された値のみで判定する。
type Guard struct {
	recorder DecisionRecorder
}

// NewGuard はGuardを生成する。recorderがnilの場合は記録を行わない。
func NewGuard(recorder DecisionRecorder) *Guard {
	return &Guard{recorder: recorder}
}

// Authorize はidentityがnoteの所有者である場合のみAllowを返す。
// identityがnil、所有者不一致、noteがnilの場合はDenyを返す。
// ノート不在はAuthorizeの呼び出し前に呼び出し側でNOT_FOUNDとして扱うこと。
func (g *Guard) Authorize(identity *model.Identity, note *model.Note, op Operation) Decision {
	decision := Deny
	if identity != nil && note != nil && identity.UserID == note.OwnerID {
		decision = Allow
	}

	if g != nil && g.recorder != nil {
		g.recorder.RecordAuthzDecision(string(op), decision.String())
	}
	return decision
}

// Require はAuthorizeの結果をエラーに変換する。
// 識別情報がない場合はUNAUTHENTICATED、所有者不一致の場合はFORBIDDENを返す。
func (g *Guard) Require(identity *model.Identity, note *model.Note, op Operation) error {
	if g.Authorize(identity, note, op) == Allow {
		return nil
	}
	if identity == nil {
		return model.NewUnauthenticatedError()
	}
	return model.NewForbiddenError(string(op))
}
