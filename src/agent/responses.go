package agent

type WalletAdvice struct {
	BalanceInfo        string `json:"balance_info"`
	TransactionSummary string `json:"transaction_summary"`
	Advice             string `json:"advice"`
	Text               string `json:"text,omitempty"`
}

type FairnessReport struct {
	IsFair             bool   `json:"is_fair"`
	DuelID             string `json:"duel_id"`
	VerificationResult string `json:"verification_result"`
	RandomnessSeed     string `json:"randomness_seed"`
	Explanation        string `json:"explanation"`
	Text               string `json:"text,omitempty"`
}

type MatchInsight struct {
	Summary    string `json:"summary"`
	Highlight  string `json:"highlight"`
	StreakInfo string `json:"streak_info"`
	ShareText  string `json:"share_text"`
	Text       string `json:"text,omitempty"`
}
