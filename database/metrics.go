/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "coredb"

// Transaction outcomes reported by TxMetrics.
const (
	OutcomeCommit      = "commit"
	OutcomeRollback    = "rollback"
	OutcomeCommitError = "commit_error"
	OutcomeBeginError  = "begin_error"
)

// TxMetrics counts transaction outcomes.
type TxMetrics struct {
	Transactions *prometheus.CounterVec
}

// NewTxMetrics registers coredb_transactions_total on reg. A nil reg leaves
// the counter unregistered. When the counter already exists on reg the
// registered instance is reused, so several runners can share a registry.
func NewTxMetrics(reg prometheus.Registerer) (*TxMetrics, error) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "transactions_total",
		Help:      "Transactions run through the transaction runner, by outcome.",
	}, []string{"outcome"})
	if reg == nil {
		return &TxMetrics{Transactions: counter}, nil
	}
	if err := reg.Register(counter); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		existing, ok := are.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, err
		}
		counter = existing
	}
	return &TxMetrics{Transactions: counter}, nil
}

func (m *TxMetrics) observe(outcome string) {
	if m == nil || m.Transactions == nil {
		return
	}
	m.Transactions.WithLabelValues(outcome).Inc()
}

// RegisterDBStats exposes the pool statistics of m on reg as go_sql_*
// metrics labelled with the database name.
func RegisterDBStats(reg prometheus.Registerer, m Manager) error {
	if reg == nil {
		return nil
	}
	sqlDB := m.SQLDB()
	if sqlDB == nil {
		return ErrNotConnected
	}
	err := reg.Register(collectors.NewDBStatsCollector(sqlDB, m.Config().Database))
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return nil
	}
	return err
}
