package x

import (
	"context"
	"testing"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest"
	"github.com/iov-one/quorum/quorumtest/assert"
)

func TestAuth(t *testing.T) {
	a := quorumtest.NewCondition()
	b := quorumtest.NewCondition()
	c := quorumtest.NewCondition()

	ctx1 := &quorumtest.CtxAuth{Key: "foo"}
	ctx2 := &quorumtest.CtxAuth{Key: "bar"}

	cases := map[string]struct {
		ctx          quorum.Context
		auth         Authenticator
		mainSigner   quorum.Condition
		wantInCtx    quorum.Condition
		wantNotInCtx quorum.Condition
		wantAll      []quorum.Condition
	}{
		"empty context": {
			ctx:          context.Background(),
			auth:         &quorumtest.Auth{},
			wantNotInCtx: b,
		},
		"signer a": {
			ctx:          context.Background(),
			auth:         &quorumtest.Auth{Signer: a},
			mainSigner:   a,
			wantInCtx:    a,
			wantNotInCtx: b,
			wantAll:      []quorum.Condition{a},
		},
		"signer b": {
			ctx: context.Background(),
			auth: ChainAuth(
				&quorumtest.Auth{Signer: b},
				&quorumtest.Auth{Signer: a}),
			mainSigner:   b,
			wantInCtx:    b,
			wantNotInCtx: c,
			wantAll:      []quorum.Condition{b, a},
		},
		"ctxAuth checks what is set by same key": {
			ctx:          ctx1.SetConditions(context.Background(), a, b),
			auth:         ctx1,
			mainSigner:   a,
			wantInCtx:    b,
			wantNotInCtx: c,
			wantAll:      []quorum.Condition{a, b},
		},
		"ctxAuth with different key sees nothing": {
			ctx:          ctx1.SetConditions(context.Background(), a, b),
			auth:         ctx2,
			wantNotInCtx: a,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			assert.Equal(t, tc.mainSigner, MainSigner(tc.ctx, tc.auth))
			if tc.wantInCtx != nil && !tc.auth.HasAddress(tc.ctx, tc.wantInCtx.Address()) {
				t.Fatal("condition address that was expected in context not found")
			}
			if tc.wantNotInCtx != nil && tc.auth.HasAddress(tc.ctx, tc.wantNotInCtx.Address()) {
				t.Fatal("condition address that was expected not to be in context found")
			}

			all := tc.auth.GetConditions(tc.ctx)
			assert.Equal(t, tc.wantAll, all)
			if !HasAllConditions(tc.ctx, tc.auth, all) {
				t.Fatal("context does not hold all of its own conditions")
			}
			if !HasAllAddresses(tc.ctx, tc.auth, GetAddresses(tc.ctx, tc.auth)) {
				t.Fatal("context does not hold all of its own addresses")
			}
		})
	}
}

func TestRequireAddress(t *testing.T) {
	a := quorumtest.NewCondition()
	b := quorumtest.NewCondition()
	auth := &quorumtest.Auth{Signer: a}
	ctx := context.Background()

	assert.Nil(t, RequireAddress(ctx, auth, a.Address()))
	assert.IsErr(t, errors.ErrUnauthorized, RequireAddress(ctx, auth, b.Address()))
	assert.IsErr(t, errors.ErrUnauthorized, RequireAddress(ctx, auth, nil))
}
