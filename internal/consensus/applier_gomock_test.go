package consensus

import (
	"testing"
	"time"

	gomock "github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/ledgerforge/ledgerd/internal/hash"
	"github.com/ledgerforge/ledgerd/internal/ledger"
	"github.com/ledgerforge/ledgerd/internal/shamap"
)

func TestAcceptCallsApplierOncePerTransactionWithExpectedArguments(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockApplier := NewMockApplier(ctrl)

	raw := []byte("tx-7-body")
	mockApplier.EXPECT().
		Apply(gomock.Any(), txID(7), raw).
		DoAndReturn(func(l *ledger.Ledger, id hash.H256, raw []byte) (ApplyResult, error) {
			if _, err := l.StateMap().Add(shamap.NewItem(id, raw), shamap.LeafAccountState); err != nil {
				return ApplyFail, err
			}
			return ApplySuccess, nil
		}).
		Times(1)

	e, master, _ := newTestEngine(t, mockApplier, &fakeSigner{id: peer(1)})

	open := master.CurrentOpen()
	require.NoError(t, open.AddTransaction(txID(7), raw))

	require.NoError(t, e.StartRound(true, 10*time.Second, 2*time.Second))
	require.NoError(t, e.Accept(time.Unix(1_000_200, 0).UTC()))

	closed, ok := master.BySeq(2)
	require.True(t, ok)
	hasTx, err := closed.TxMap().Has(txID(7))
	require.NoError(t, err)
	require.True(t, hasTx)
}
