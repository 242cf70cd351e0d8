// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"io"
	"net/http"
	"sort"

	"github.com/google/uuid"

	"github.com/luxfi/dax/pkg/auction"
	"github.com/luxfi/dax/pkg/descriptor"
	"github.com/luxfi/dax/pkg/ids"
	"github.com/luxfi/dax/pkg/registry"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request) {
	var params registry.CreateParams
	if err := decodeBody(r, &params); err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.registry.Create(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a.Snapshot())
}

type listResponse struct {
	Auctions []auction.Snapshot `json:"auctions"`
	Count    int                `json:"count"`
}

func (s *Server) handleListAuctions(w http.ResponseWriter, r *http.Request) {
	all := s.registry.List()
	snaps := make([]auction.Snapshot, 0, len(all))
	for _, a := range all {
		snaps = append(snaps, a.Snapshot())
	}
	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].Spec.ID.String() < snaps[j].Spec.ID.String()
	})
	s.writeJSON(w, http.StatusOK, listResponse{Auctions: snaps, Count: len(snaps)})
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a.Snapshot())
}

type priceResponse struct {
	AuctionID    ids.ID         `json:"auction_id"`
	Status       auction.Status `json:"status"`
	CurrentPrice uint64         `json:"current_price"`
	StartPrice   uint64         `json:"start_price"`
	MinimumPrice uint64         `json:"minimum_price"`
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap := a.Snapshot()
	s.writeJSON(w, http.StatusOK, priceResponse{
		AuctionID:    snap.Spec.ID,
		Status:       snap.Status,
		CurrentPrice: snap.CurrentPrice,
		StartPrice:   snap.Spec.StartPrice,
		MinimumPrice: snap.Spec.MinimumPrice,
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.Activate(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a.Snapshot())
}

type purchaseRequest struct {
	Payer   ids.ID `json:"payer"`
	Payment uint64 `json:"payment"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	receipt, err := s.registry.Purchase(r.Context(), id, req.Payer, req.Payment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, receipt)
}

type expireResponse struct {
	AuctionID ids.ID         `json:"auction_id"`
	Expired   bool           `json:"expired"`
	Status    auction.Status `json:"status"`
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	expired, err := s.registry.CheckExpiry(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	a, err := s.registry.Get(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, expireResponse{
		AuctionID: id,
		Expired:   expired,
		Status:    a.Status(),
	})
}

type approveRequest struct {
	Caller ids.ID `json:"caller"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req approveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.Approve(r.Context(), req.Caller, id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"auction_id": id, "approved": true})
}

type withdrawRequest struct {
	Caller ids.ID `json:"caller"`
	To     ids.ID `json:"to"`
	Amount uint64 `json:"amount"`
}

type withdrawResponse struct {
	Entry  uuid.UUID `json:"entry"`
	Amount uint64    `json:"amount"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	entry, amount, err := s.registry.WithdrawFees(r.Context(), req.Caller, req.To, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, withdrawResponse{Entry: entry, Amount: amount})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		http.Error(w, "analytics disabled", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sales":        s.tracker.Snapshot(),
		"fees_accrued": s.registry.FeeBalance(),
	})
}

func (s *Server) handlePutDescriptor(w http.ResponseWriter, r *http.Request) {
	if s.descriptors == nil {
		http.Error(w, "descriptor store disabled", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, descriptor.MaxDescriptorSize+1))
	if err != nil {
		s.writeError(w, descriptor.ErrTooLarge)
		return
	}
	hash, err := s.descriptors.Put(body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{"hash": hash, "size": len(body)})
}

func (s *Server) handleGetDescriptor(w http.ResponseWriter, r *http.Request) {
	if s.descriptors == nil {
		http.Error(w, "descriptor store disabled", http.StatusServiceUnavailable)
		return
	}
	hash, err := pathID(r, "hash")
	if err != nil {
		s.writeError(w, err)
		return
	}
	doc, err := s.descriptors.Get(hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

type depositRequest struct {
	Amount uint64 `json:"amount"`
	Memo   string `json:"memo,omitempty"`
}

type accountResponse struct {
	Account ids.ID `json:"account"`
	Balance uint64 `json:"balance"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req depositRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	memo := req.Memo
	if memo == "" {
		memo = "api deposit"
	}
	if _, err := s.funds.Deposit(id, req.Amount, memo); err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.funds.Balance(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{Account: id, Balance: balance})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, err)
		return
	}
	balance, err := s.funds.Balance(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, accountResponse{Account: id, Balance: balance})
}
