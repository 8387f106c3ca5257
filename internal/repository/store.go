package repository

// Store groups the repositories of one storage backend.
type Store struct {
	Tx           TxManager
	Members      MemberRepository
	Requests     RequestRepository
	Proposals    ProposalRepository
	Transactions TransactionRepository
	Tags         TagRepository
	Ratings      RatingRepository
	Outbox       OutboxRepository
}
