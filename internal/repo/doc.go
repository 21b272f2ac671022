// Package repo хранит runs, записи stages и credentials в PostgreSQL.
//
// RunRepo реализует pipeline.RunStore, CredentialRepo реализует
// secrets.Store. Оба принимают DBTX, поэтому работают и с пулом,
// и внутри транзакции.
package repo
