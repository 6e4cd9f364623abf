package nft

import (
	"math"

	"nftledger/core/state"
)

// fieldReader accumulates the first read error across a sequence of reads.
type fieldReader struct {
	c   *state.Codec
	err error
}

func (r *fieldReader) i64(key []byte) int64 {
	if r.err != nil {
		return 0
	}
	v, err := r.c.GetInt(key)
	r.err = err
	return v
}

func (r *fieldReader) flag(key []byte) bool {
	return r.i64(key) != 0
}

func (r *fieldReader) text(key []byte) string {
	if r.err != nil {
		return ""
	}
	v, err := r.c.GetString(key)
	r.err = err
	return v
}

// fieldWriter stops at the first failed write and remembers it.
type fieldWriter struct {
	c   *state.Codec
	err error
}

func (w *fieldWriter) i64(key []byte, v int64) {
	if w.err != nil {
		return
	}
	w.err = w.c.PutInt(key, v)
}

func (w *fieldWriter) flag(key []byte, v bool) {
	if w.err != nil {
		return
	}
	w.err = w.c.PutBool(key, v)
}

func (w *fieldWriter) text(key []byte, v string) {
	if w.err != nil {
		return
	}
	w.err = w.c.PutString(key, v)
}

func (e *Engine) reader() *fieldReader { return &fieldReader{c: e.codec} }
func (e *Engine) writer() *fieldWriter { return &fieldWriter{c: e.codec} }

func (e *Engine) readInt(op string, key []byte) (int64, error) {
	v, err := e.codec.GetInt(key)
	if err != nil {
		return 0, integrity(op, err)
	}
	return v, nil
}

func (e *Engine) writeInt(op string, key []byte, v int64) error {
	return integrity(op, e.codec.PutInt(key, v))
}

func (e *Engine) collectionExists(id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	owner, err := e.readInt("read collection owner", collectionFieldKey(id, fieldOwner))
	return owner > 0, err
}

func (e *Engine) loadCollection(id int64) (*Collection, error) {
	exists, err := e.collectionExists(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCollectionNotFound
	}
	r := e.reader()
	c := &Collection{
		ID:           id,
		OwnerID:      r.i64(collectionFieldKey(id, fieldOwner)),
		Name:         r.text(collectionFieldKey(id, fieldName)),
		Symbol:       r.text(collectionFieldKey(id, fieldSymbol)),
		Description:  r.text(collectionFieldKey(id, fieldDescription)),
		BaseURI:      r.text(collectionFieldKey(id, fieldBaseURI)),
		MaxSupply:    r.i64(collectionFieldKey(id, fieldMaxSupply)),
		Minted:       r.i64(collectionFieldKey(id, fieldMinted)),
		RoyaltyBps:   r.i64(collectionFieldKey(id, fieldRoyaltyBps)),
		Transferable: r.flag(collectionFieldKey(id, fieldTransferable)),
		Paused:       r.flag(collectionFieldKey(id, fieldPaused)),
		CreatedAt:    r.i64(collectionFieldKey(id, fieldCreatedAt)),
		Serial:       r.i64(collectionSerialKey(id)),
	}
	if r.err != nil {
		return nil, integrity("read collection", r.err)
	}
	c.Owner = e.resolver.AddressOf(c.OwnerID)
	return c, nil
}

func (e *Engine) collectionPaused(id int64) (bool, error) {
	v, err := e.readInt("read collection paused", collectionFieldKey(id, fieldPaused))
	return v != 0, err
}

func (e *Engine) tokenExists(id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	cid, err := e.readInt("read token collection", tokenFieldKey(id, tokenFieldCollection))
	return cid > 0, err
}

func (e *Engine) loadToken(id int64) (*Token, error) {
	exists, err := e.tokenExists(id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrTokenNotFound
	}
	r := e.reader()
	t := &Token{
		ID:           id,
		CollectionID: r.i64(tokenFieldKey(id, tokenFieldCollection)),
		OwnerID:      r.i64(tokenFieldKey(id, tokenFieldOwner)),
		URI:          r.text(tokenFieldKey(id, tokenFieldURI)),
		Properties:   r.text(tokenFieldKey(id, tokenFieldProperties)),
		Burned:       r.flag(tokenFieldKey(id, tokenFieldBurned)),
		MintedAt:     r.i64(tokenFieldKey(id, tokenFieldMintedAt)),
		Class:        TokenClass(r.i64(tokenFieldKey(id, tokenFieldClass))),
	}
	if r.err != nil {
		return nil, integrity("read token", r.err)
	}
	t.Owner = e.resolver.AddressOf(t.OwnerID)
	return t, nil
}

func (e *Engine) loadDropConfig(id int64) (DropConfig, error) {
	r := e.reader()
	cfg := DropConfig{
		Enabled:           r.flag(dropConfigKey(id, dropFieldEnabled)),
		StartAt:           r.i64(dropConfigKey(id, dropFieldStartAt)),
		EndAt:             r.i64(dropConfigKey(id, dropFieldEndAt)),
		PerWalletLimit:    r.i64(dropConfigKey(id, dropFieldPerWalletLimit)),
		WhitelistRequired: r.flag(dropConfigKey(id, dropFieldWhitelistRequired)),
	}
	return cfg, integrity("read drop config", r.err)
}

func (e *Engine) storeDropConfig(id int64, cfg DropConfig) error {
	w := e.writer()
	w.flag(dropConfigKey(id, dropFieldEnabled), cfg.Enabled)
	w.i64(dropConfigKey(id, dropFieldStartAt), cfg.StartAt)
	w.i64(dropConfigKey(id, dropFieldEndAt), cfg.EndAt)
	w.i64(dropConfigKey(id, dropFieldPerWalletLimit), cfg.PerWalletLimit)
	w.flag(dropConfigKey(id, dropFieldWhitelistRequired), cfg.WhitelistRequired)
	return integrity("write drop config", w.err)
}

func (e *Engine) loadCheckInProgram(id int64) (CheckInProgram, error) {
	r := e.reader()
	p := CheckInProgram{
		Enabled:              r.flag(checkInProgramKey(id, checkInFieldEnabled)),
		MembershipRequired:   r.flag(checkInProgramKey(id, checkInFieldMembershipRequired)),
		MembershipSoulbound:  r.flag(checkInProgramKey(id, checkInFieldMembershipSoulbound)),
		StartAt:              r.i64(checkInProgramKey(id, checkInFieldStartAt)),
		EndAt:                r.i64(checkInProgramKey(id, checkInFieldEndAt)),
		IntervalSeconds:      r.i64(checkInProgramKey(id, checkInFieldInterval)),
		MaxCheckInsPerWallet: r.i64(checkInProgramKey(id, checkInFieldMaxPerWallet)),
		MintProofNFT:         r.flag(checkInProgramKey(id, checkInFieldMintProof)),
	}
	return p, integrity("read check-in program", r.err)
}

func (e *Engine) storeCheckInProgram(id int64, p CheckInProgram) error {
	w := e.writer()
	w.flag(checkInProgramKey(id, checkInFieldEnabled), p.Enabled)
	w.flag(checkInProgramKey(id, checkInFieldMembershipRequired), p.MembershipRequired)
	w.flag(checkInProgramKey(id, checkInFieldMembershipSoulbound), p.MembershipSoulbound)
	w.i64(checkInProgramKey(id, checkInFieldStartAt), p.StartAt)
	w.i64(checkInProgramKey(id, checkInFieldEndAt), p.EndAt)
	w.i64(checkInProgramKey(id, checkInFieldInterval), p.IntervalSeconds)
	w.i64(checkInProgramKey(id, checkInFieldMaxPerWallet), p.MaxCheckInsPerWallet)
	w.flag(checkInProgramKey(id, checkInFieldMintProof), p.MintProofNFT)
	return integrity("write check-in program", w.err)
}

func (e *Engine) loadWalletStats(collectionID, account int64) (count, lastAt int64, err error) {
	r := e.reader()
	count = r.i64(checkInWalletKey(collectionID, account, walletFieldCount))
	lastAt = r.i64(checkInWalletKey(collectionID, account, walletFieldLastAt))
	return count, lastAt, integrity("read check-in wallet", r.err)
}

func (e *Engine) storeWalletStats(collectionID, account, count, lastAt int64) error {
	w := e.writer()
	w.i64(checkInWalletKey(collectionID, account, walletFieldCount), count)
	w.i64(checkInWalletKey(collectionID, account, walletFieldLastAt), lastAt)
	return w.err
}

func (e *Engine) membershipBalance(collectionID, account int64) (int64, error) {
	return e.readInt("read membership balance", membershipBalanceKey(collectionID, account))
}

// adjustMembership applies delta to a membership balance, saturating on add
// and flooring at zero on subtract.
func (e *Engine) adjustMembership(collectionID, account, delta int64) error {
	current, err := e.membershipBalance(collectionID, account)
	if err != nil {
		return err
	}
	next := saturatingAdd(current, delta)
	if next < 0 {
		next = 0
	}
	return e.writeInt("write membership balance", membershipBalanceKey(collectionID, account), next)
}

func (e *Engine) balance(account int64) (int64, error) {
	return e.readInt("read balance", balanceKey(account))
}

// decrementClamped lowers the integer at key by one unless it is already zero.
func (e *Engine) decrementClamped(op string, key []byte) error {
	v, err := e.readInt(op, key)
	if err != nil {
		return err
	}
	if v <= 0 {
		return nil
	}
	return e.writeInt(op, key, v-1)
}

func (e *Engine) increment(op string, key []byte) (int64, error) {
	v, err := e.readInt(op, key)
	if err != nil {
		return 0, err
	}
	v = saturatingAdd(v, 1)
	return v, e.writeInt(op, key, v)
}

func (e *Engine) soulbound(collectionID int64) (bool, error) {
	v, err := e.readInt("read soulbound flag", checkInProgramKey(collectionID, checkInFieldMembershipSoulbound))
	return v != 0, err
}

func (e *Engine) canManage(collectionID, actor int64) (bool, error) {
	owner, err := e.readInt("read collection owner", collectionFieldKey(collectionID, fieldOwner))
	if err != nil {
		return false, err
	}
	if owner > 0 && owner == actor {
		return true, nil
	}
	grant, err := e.readInt("read operator grant", operatorKey(collectionID, actor))
	return grant != 0, err
}

func saturatingAdd(a, b int64) int64 {
	if b > 0 && a > math.MaxInt64-b {
		return math.MaxInt64
	}
	if b < 0 && a < math.MinInt64-b {
		return math.MinInt64
	}
	return a + b
}

// windowOpen reports whether now lies in [start, end]; zero bounds are open.
func windowOpen(now, start, end int64) bool {
	if start > 0 && now < start {
		return false
	}
	if end > 0 && now > end {
		return false
	}
	return true
}
