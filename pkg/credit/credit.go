package credit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shouni/jimeng-image-kit/pkg/api"
	"github.com/shouni/jimeng-image-kit/pkg/domain"
	"github.com/shouni/jimeng-image-kit/pkg/signer"
)

const (
	userCreditPath    = "/commerce/v1/benefits/user_credit"
	creditReceivePath = "/commerce/v1/benefits/credit_receive"
	claimTimeZone     = "Asia/Shanghai"
)

// Manager はプロバイダー内クレジットの照会と日次受け取りを行います。
type Manager struct {
	caller api.Caller
}

// NewManager は Manager を初期化します。
func NewManager(caller api.Caller) (*Manager, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	return &Manager{caller: caller}, nil
}

// GetBalance はクレジット残高を取得します。
func (m *Manager) GetBalance(ctx context.Context, cred domain.Credential) (domain.CreditBalance, error) {
	resp, err := m.caller.Call(ctx, cred, api.Request{
		Method:          http.MethodPost,
		Path:            userCreditPath,
		Data:            map[string]any{},
		Headers:         map[string]string{"Referer": signer.ImageGeneratePage},
		NoDefaultParams: true,
	})
	if err != nil {
		return domain.CreditBalance{}, fmt.Errorf("クレジット残高の取得に失敗しました: %w", err)
	}

	c := resp.Field("credit")
	return domain.CreditBalance{
		Gift:     int(c.Get("gift_credit").Int()),
		Purchase: int(c.Get("purchase_credit").Int()),
		VIP:      int(c.Get("vip_credit").Int()),
	}, nil
}

// ClaimDaily は日次クレジットを受け取り、受け取り後の合計を返します。
func (m *Manager) ClaimDaily(ctx context.Context, cred domain.Credential) (int, error) {
	resp, err := m.caller.Call(ctx, cred, api.Request{
		Method:  http.MethodPost,
		Path:    creditReceivePath,
		Data:    map[string]any{"time_zone": claimTimeZone},
		Headers: map[string]string{"Referer": signer.ImageGeneratePage},
	})
	if err != nil {
		return 0, fmt.Errorf("日次クレジットの受け取りに失敗しました: %w", err)
	}

	total := int(resp.Field("cur_total_credits").Int())
	slog.InfoContext(ctx, "日次クレジットを受け取りました",
		"credential_id", cred.ID,
		"received", resp.Field("receive_quota").Int(),
		"total", total,
	)
	return total, nil
}

// EnsureCredit は残高が0なら1回だけ受け取りを試みます。
// 失敗はログに残すだけで、呼び出し元の処理は止めません。
func (m *Manager) EnsureCredit(ctx context.Context, cred domain.Credential) {
	balance, err := m.GetBalance(ctx, cred)
	if err != nil {
		slog.WarnContext(ctx, "クレジット残高を確認できませんでした。未対応リージョンかトークン失効の可能性があります", "credential_id", cred.ID, "error", err)
		return
	}
	if balance.Total() > 0 {
		return
	}
	if _, err := m.ClaimDaily(ctx, cred); err != nil {
		slog.WarnContext(ctx, "日次クレジットを受け取れませんでした", "credential_id", cred.ID, "error", err)
	}
}
