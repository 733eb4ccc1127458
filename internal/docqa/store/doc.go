// Package store 实现向量索引：精确内积检索的本地 FlatIndex 以及基于 Milvus 的 MilvusIndex。
package store
