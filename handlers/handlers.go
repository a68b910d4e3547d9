package handlers

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"dag-ledger/dag"
	"dag-ledger/logger"
	"dag-ledger/models"
	"dag-ledger/node"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

// Handler contains the HTTP handlers for the ledger API endpoints
type Handler struct {
	Participant *node.Participant
}

// NewHandler creates and returns a new Handler instance
func NewHandler(p *node.Participant) *Handler {
	return &Handler{Participant: p}
}

type submitRequest struct {
	Timeslot int `json:"timeslot"`
	// Packed is the hex form of the packed signed block.
	Packed string `json:"packed"`
}

type produceRequest struct {
	Timeslot int    `json:"timeslot"`
	Payload  string `json:"payload"`
}

type txView struct {
	Kind     string `json:"kind"`
	Hash     string `json:"hash"`
	Data     string `json:"data,omitempty"`
	Block    string `json:"block,omitempty"`
	Timeslot *int   `json:"timeslot,omitempty"`
}

type blockView struct {
	Hash         string   `json:"hash"`
	Timeslot     int      `json:"timeslot"`
	Timestamp    int64    `json:"timestamp"`
	Parents      []string `json:"parents"`
	Transactions []txView `json:"transactions"`
	Signature    string   `json:"signature,omitempty"`
}

type slotView struct {
	Kind     string `json:"kind"`
	Timeslot int    `json:"timeslot"`
	Hash     string `json:"hash,omitempty"`
	Anchor   string `json:"anchor,omitempty"`
	Backstep int    `json:"backstep,omitempty"`
}

func newBlockView(block *models.SignedBlock, number int) blockView {
	view := blockView{
		Hash:      block.Hash().String(),
		Timeslot:  number,
		Timestamp: block.Block.Timestamp(),
		Parents:   models.HashStrings(block.Block.PrevHashes()),
		Signature: hex.EncodeToString(block.Signature),
	}
	txHashes := block.Block.TxHashes()
	for i, tx := range block.Block.SystemTxs() {
		v := txView{Kind: tx.Kind().String(), Hash: txHashes[i].String()}
		switch t := tx.(type) {
		case *models.Payload:
			v.Data = string(t.Data)
		case *models.PositiveAck:
			v.Block = t.Block.String()
		case *models.NegativeAck:
			timeslot := t.Timeslot
			v.Timeslot = &timeslot
		}
		view.Transactions = append(view.Transactions, v)
	}
	return view
}

func newSlotViews(slots []models.Slot) []slotView {
	views := make([]slotView, 0, len(slots))
	for _, s := range slots {
		switch s.Kind {
		case models.SlotOccupied:
			views = append(views, slotView{Kind: "block", Timeslot: s.Number, Hash: s.Hash().String()})
		case models.SlotSkipped:
			views = append(views, slotView{Kind: "skip", Timeslot: s.Number, Anchor: s.Anchor.String(), Backstep: s.Backstep})
		default:
			views = append(views, slotView{Kind: "gap", Timeslot: s.Number})
		}
	}
	return views
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, dag.ErrDuplicateHash):
		status = http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, dag.ErrDanglingParent),
		errors.Is(err, dag.ErrInvalidGenesis),
		errors.Is(err, dag.ErrInvalidTimeslot):
		status = http.StatusBadRequest
	case errors.Is(err, dag.ErrNotFound), errors.Is(err, dag.ErrNoCommonAncestor):
		status = http.StatusNotFound
	case errors.Is(err, node.ErrNoKey):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		logger.Logger.Error(msg, zap.Error(err))
	} else {
		logger.Logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func hashVar(r *http.Request, name string) (models.Hash, error) {
	h, err := models.HashFromString(mux.Vars(r)[name])
	if err != nil {
		return models.ZeroHash, errors.Wrapf(errBadRequest, "%s: %v", name, err)
	}
	return h, nil
}

// hashList parses a comma separated query parameter.
func hashList(r *http.Request, name string) ([]models.Hash, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	var hashes []models.Hash
	for _, part := range strings.Split(raw, ",") {
		h, err := models.HashFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(errBadRequest, "%s: %v", name, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// tipsOrCurrent returns the tips query parameter, or the current tips when it is absent.
func (h *Handler) tipsOrCurrent(r *http.Request) ([]models.Hash, error) {
	tips, err := hashList(r, "tips")
	if err != nil || len(tips) > 0 {
		return tips, err
	}
	return h.Participant.Tips(), nil
}

// SubmitBlock handles POST requests admitting a packed signed block at a timeslot
func (h *Handler) SubmitBlock(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Failed to decode block", errors.Wrap(errBadRequest, "invalid request payload"))
		return
	}
	packed, err := hex.DecodeString(req.Packed)
	if err != nil {
		writeError(w, "Failed to decode block", errors.Wrapf(errBadRequest, "packed: %v", err))
		return
	}
	block, _, err := models.UnpackSignedBlock(packed)
	if err != nil {
		writeError(w, "Failed to unpack block", errors.Wrapf(errBadRequest, "packed: %v", err))
		return
	}
	if err := h.Participant.Admit(req.Timeslot, block); err != nil {
		writeError(w, "Failed to admit block", err)
		return
	}

	logger.Logger.Info("Admitted block", zap.String("hash", block.Hash().String()), zap.Int("timeslot", req.Timeslot))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Block admitted successfully",
		"block":   newBlockView(block, req.Timeslot),
	})
}

// ProduceBlock signs a block with the node's own key on top of every current tip
func (h *Handler) ProduceBlock(w http.ResponseWriter, r *http.Request) {
	var req produceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Failed to decode produce request", errors.Wrap(errBadRequest, "invalid request payload"))
		return
	}
	var txs []models.SystemTx
	if req.Payload != "" {
		txs = append(txs, &models.Payload{Data: []byte(req.Payload)})
	}
	block, err := h.Participant.Produce(req.Timeslot, txs...)
	if err != nil {
		writeError(w, "Failed to produce block", err)
		return
	}
	packed, err := block.MarshalMsg(nil)
	if err != nil {
		writeError(w, "Failed to pack block", err)
		return
	}

	logger.Logger.Info("Produced block", zap.String("hash", block.Hash().String()), zap.Int("timeslot", req.Timeslot))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Block produced successfully",
		"block":   newBlockView(block, req.Timeslot),
		"packed":  hex.EncodeToString(packed),
	})
}

// GetTips returns the current tips, highest timeslot first
func (h *Handler) GetTips(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tips": models.HashStrings(h.Participant.Tips()),
	})
}

// GetBlock returns one block with its timeslot
func (h *Handler) GetBlock(w http.ResponseWriter, r *http.Request) {
	hash, err := hashVar(r, "hash")
	if err != nil {
		writeError(w, "Invalid hash", err)
		return
	}
	block, number, err := h.Participant.Block(hash)
	if err != nil {
		writeError(w, "Failed to get block", err)
		return
	}
	writeJSON(w, http.StatusOK, newBlockView(block, number))
}

// GetRequirement returns the confirmation requirement of a block
func (h *Handler) GetRequirement(w http.ResponseWriter, r *http.Request) {
	h.blockInt(w, r, "requirement", h.Participant.Requirement)
}

// GetZeta returns the zeta of a block
func (h *Handler) GetZeta(w http.ResponseWriter, r *http.Request) {
	h.blockInt(w, r, "zeta", h.Participant.Zeta)
}

// GetConfirmations returns the confirmations a block has received
func (h *Handler) GetConfirmations(w http.ResponseWriter, r *http.Request) {
	h.blockInt(w, r, "confirmations", h.Participant.Confirmations)
}

func (h *Handler) blockInt(w http.ResponseWriter, r *http.Request, field string, get func(models.Hash) (int, error)) {
	hash, err := hashVar(r, "hash")
	if err != nil {
		writeError(w, "Invalid hash", err)
		return
	}
	v, err := get(hash)
	if err != nil {
		writeError(w, "Failed to get "+field, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hash": hash.String(),
		field:  v,
	})
}

// GetBlockConflicts returns the blocks its signer produced in the same epoch
func (h *Handler) GetBlockConflicts(w http.ResponseWriter, r *http.Request) {
	hash, err := hashVar(r, "hash")
	if err != nil {
		writeError(w, "Invalid hash", err)
		return
	}
	conflicting, err := h.Participant.ConflictsFor(hash)
	if err != nil {
		writeError(w, "Failed to get conflicts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hash":      hash.String(),
		"conflicts": models.HashStrings(conflicting),
	})
}

// GetSkip returns the requirement and confirmations of an empty run behind an anchor block
func (h *Handler) GetSkip(w http.ResponseWriter, r *http.Request) {
	anchor, err := hashVar(r, "anchor")
	if err != nil {
		writeError(w, "Invalid anchor", err)
		return
	}
	backstep, err := strconv.Atoi(r.URL.Query().Get("backstep"))
	if err != nil || backstep < 1 {
		writeError(w, "Invalid backstep", errors.Wrap(errBadRequest, "backstep must be a positive integer"))
		return
	}
	requirement, err := h.Participant.SkipRequirement(anchor, backstep)
	if err != nil {
		writeError(w, "Failed to get skip requirement", err)
		return
	}
	confirmations, err := h.Participant.SkipConfirmations(anchor)
	if err != nil {
		writeError(w, "Failed to get skip confirmations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"anchor":        anchor.String(),
		"backstep":      backstep,
		"requirement":   requirement,
		"confirmations": confirmations,
	})
}

// Merge linearizes the given tips, leaving out the given conflicts
func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	tips, err := h.tipsOrCurrent(r)
	if err != nil {
		writeError(w, "Invalid tips", err)
		return
	}
	exclude, err := hashList(r, "conflicts")
	if err != nil {
		writeError(w, "Invalid conflicts", err)
		return
	}
	seq, err := h.Participant.Merge(tips, exclude)
	if err != nil {
		writeError(w, "Failed to merge", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots":  newSlotViews(seq.Slots()),
		"digest": seq.Digest().String(),
	})
}

// GetOrder returns the merged order of the whole DAG
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	seq, err := h.Participant.Order()
	if err != nil {
		writeError(w, "Failed to order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots":  newSlotViews(seq.Slots()),
		"digest": seq.Digest().String(),
	})
}

// Walk returns the merging walk from a block down to genesis
func (h *Handler) Walk(w http.ResponseWriter, r *http.Request) {
	hash, err := hashVar(r, "hash")
	if err != nil {
		writeError(w, "Invalid hash", err)
		return
	}
	slots, err := h.Participant.Walk(hash)
	if err != nil {
		writeError(w, "Failed to walk", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots": newSlotViews(slots),
	})
}

// FindConflicts classifies the equivocations between the given tips
func (h *Handler) FindConflicts(w http.ResponseWriter, r *http.Request) {
	tips, err := h.tipsOrCurrent(r)
	if err != nil {
		writeError(w, "Invalid tips", err)
		return
	}
	explicit, candidates, err := h.Participant.FindConflicts(tips)
	if err != nil {
		writeError(w, "Failed to find conflicts", err)
		return
	}
	groups := make([][]string, 0, len(candidates))
	for _, group := range candidates {
		groups = append(groups, models.HashStrings(group))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"explicit":   models.HashStrings(explicit),
		"candidates": groups,
	})
}

// GetLongestChain picks a canonical tip and lists the blocks off its chain
func (h *Handler) GetLongestChain(w http.ResponseWriter, r *http.Request) {
	tips, err := h.tipsOrCurrent(r)
	if err != nil {
		writeError(w, "Invalid tips", err)
		return
	}
	chosen, conflicting, err := h.Participant.LongestChain(tips)
	if err != nil {
		writeError(w, "Failed to choose tip", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tip":       chosen.String(),
		"conflicts": models.HashStrings(conflicting),
	})
}
