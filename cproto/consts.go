package cproto

// Query command stream opcodes.
const (
	QueryCondition      = 0
	QueryDistinct       = 1
	QuerySortIndex      = 2
	QueryJoinOn         = 3
	QueryLimit          = 4
	QueryOffset         = 5
	QueryReqTotal       = 6
	QueryDebugLevel     = 7
	QueryAggregation    = 8
	QuerySelectFilter   = 9
	QuerySelectFunction = 10
	QueryEnd            = 11
	QueryExplain        = 12
	QueryEqualPosition  = 13
	QueryUpdateField    = 14
	QueryJoinCondition  = 20
	QueryDropField      = 21
	QueryUpdateObject   = 22
	QueryStrictMode     = 24
	QueryUpdateFieldV2  = 25
	QueryKnnCondition   = 32
)

// Value kinds used inside the query stream.
const (
	ValueInt64     = 0
	ValueDouble    = 1
	ValueString    = 2
	ValueBool      = 3
	ValueNull      = 4
	ValueInt       = 8
	ValueUndefined = 9
	ValueComposite = 10
	ValueTuple     = 11
	ValueUUID      = 12
	ValueFloat     = 13
)

// Join kinds.
const (
	LeftJoin    = 0
	InnerJoin   = 1
	OrInnerJoin = 2
	Merge       = 3
)

// Boolean operators joining a predicate with the preceding ones.
const (
	OpOr  = 1
	OpAnd = 2
	OpNot = 3
)

// KNN search parameter serialization.
const (
	KnnQueryTypeBase       = 0
	KnnQueryTypeBruteForce = 1
	KnnQueryTypeHnsw       = 2
	KnnQueryTypeIvf        = 3

	KnnQueryParamsVersion = 1

	KnnSerializeWithK      = 1
	KnnSerializeWithRadius = 1 << 1
)

// Item formats understood by ModifyItem and returned in query results.
const (
	FormatJSON    = 0
	FormatCJSON   = 1
	FormatMsgPack = 2
)

// Item modification modes.
const (
	ModeUpdate = 0
	ModeInsert = 1
	ModeUpsert = 2
	ModeDelete = 3
)

// Condition codes.
const (
	CondAny    = 0
	CondEq     = 1
	CondLt     = 2
	CondLe     = 3
	CondGt     = 4
	CondGe     = 5
	CondRange  = 6
	CondSet    = 7
	CondAllSet = 8
	CondEmpty  = 9
)

// Total count modes of QueryReqTotal.
const (
	TotalModeAccurate = 1
	TotalModeCached   = 2
)
