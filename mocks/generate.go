package mocks

//go:generate mockgen -destination=./mock_account.go -package=mocks github.com/rxtech-lab/argo-tradlet/internal/account Account,EventSource
//go:generate mockgen -destination=./mock_tradlet.go -package=mocks github.com/rxtech-lab/argo-tradlet/internal/tradlet Tradlet
//go:generate mockgen -destination=./mock_journal.go -package=mocks github.com/rxtech-lab/argo-tradlet/internal/group Journal
