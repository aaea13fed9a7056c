package rxdb

import (
	"fmt"

	"github.com/andreyvit/rxdb/cproto"
)

// KnnSearchParam configures a vector similarity condition (see
// Query.WhereKNN). Implemented by KnnBase, KnnBruteForce, KnnHnsw and KnnIvf.
type KnnSearchParam interface {
	appendKnn(b *cproto.Buffer)
	validate() error
	fmt.Stringer
}

// KnnBase holds the parameters common to all index types. At least one of K
// (the number of neighbours) and Radius must be set.
type KnnBase struct {
	K      int
	Radius float32
}

type KnnBruteForce struct {
	KnnBase
}

type KnnHnsw struct {
	KnnBase
	Ef int
}

type KnnIvf struct {
	KnnBase
	NProbe int
}

func (p KnnBase) validate() error {
	if p.K < 0 {
		return fmt.Errorf("k = %d: %w", p.K, ErrInvalidKnnParams)
	}
	if p.K == 0 && p.Radius == 0 {
		return fmt.Errorf("neither k nor radius set: %w", ErrInvalidKnnParams)
	}
	return nil
}

func (p KnnBase) appendBase(b *cproto.Buffer) {
	switch {
	case p.K != 0 && p.Radius != 0:
		b.PutUvarint(cproto.KnnSerializeWithK | cproto.KnnSerializeWithRadius)
		b.PutUvarint(uint64(p.K))
		b.PutFloat(p.Radius)
	case p.K != 0:
		b.PutUvarint(cproto.KnnSerializeWithK)
		b.PutUvarint(uint64(p.K))
	default:
		b.PutUvarint(cproto.KnnSerializeWithRadius)
		b.PutFloat(p.Radius)
	}
}

func (p KnnBase) appendKnn(b *cproto.Buffer) {
	b.PutUvarint(cproto.KnnQueryTypeBase)
	b.PutUvarint(cproto.KnnQueryParamsVersion)
	p.appendBase(b)
}

func (p KnnBase) String() string {
	switch {
	case p.K != 0 && p.Radius != 0:
		return fmt.Sprintf("k=%d radius=%g", p.K, p.Radius)
	case p.K != 0:
		return fmt.Sprintf("k=%d", p.K)
	default:
		return fmt.Sprintf("radius=%g", p.Radius)
	}
}

func (p KnnBruteForce) appendKnn(b *cproto.Buffer) {
	b.PutUvarint(cproto.KnnQueryTypeBruteForce)
	b.PutUvarint(cproto.KnnQueryParamsVersion)
	p.appendBase(b)
}

func (p KnnBruteForce) String() string {
	return "bf " + p.KnnBase.String()
}

func (p KnnHnsw) validate() error {
	if err := p.KnnBase.validate(); err != nil {
		return err
	}
	if p.Ef < p.K || p.Ef <= 0 {
		return fmt.Errorf("ef = %d, k = %d: %w", p.Ef, p.K, ErrInvalidKnnParams)
	}
	return nil
}

func (p KnnHnsw) appendKnn(b *cproto.Buffer) {
	b.PutUvarint(cproto.KnnQueryTypeHnsw)
	b.PutUvarint(cproto.KnnQueryParamsVersion)
	p.appendBase(b)
	b.PutUvarint(uint64(p.Ef))
}

func (p KnnHnsw) String() string {
	return fmt.Sprintf("hnsw %v ef=%d", p.KnnBase, p.Ef)
}

func (p KnnIvf) validate() error {
	if err := p.KnnBase.validate(); err != nil {
		return err
	}
	if p.NProbe <= 0 {
		return fmt.Errorf("nprobe = %d: %w", p.NProbe, ErrInvalidKnnParams)
	}
	return nil
}

func (p KnnIvf) appendKnn(b *cproto.Buffer) {
	b.PutUvarint(cproto.KnnQueryTypeIvf)
	b.PutUvarint(cproto.KnnQueryParamsVersion)
	p.appendBase(b)
	b.PutUvarint(uint64(p.NProbe))
}

func (p KnnIvf) String() string {
	return fmt.Sprintf("ivf %v nprobe=%d", p.KnnBase, p.NProbe)
}
