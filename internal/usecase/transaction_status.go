package usecase

import "pos/internal/domain/model"

// ステータスの遷移表は持たない（どの状態からでも変更できる）。
// 副作用だけが前後の組み合わせで決まる。

// 返金・取消への初回の遷移だけ在庫を戻す。
// 取消 → 返金 や 返金 → 返金 では戻さない。
func restocksOnTransition(prev, next model.TransactionStatus) bool {
	return next.IsReversal() && !prev.IsReversal()
}

// 完了済みの会計を削除するときだけ在庫を戻す
func restocksOnDelete(status model.TransactionStatus) bool {
	return status.CountsAsSale()
}

// 在庫戻しの理由（履歴用）
func restockReason(next model.TransactionStatus) string {
	switch next {
	case model.TransactionStatusRefunded:
		return "refund"
	case model.TransactionStatusCancelled:
		return "cancel"
	}
	return "delete"
}
