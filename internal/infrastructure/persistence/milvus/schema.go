package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionProfileVectors profile 向量集合
	CollectionProfileVectors = "profile_vectors"

	// DefaultVectorDimension 默认向量维度
	DefaultVectorDimension = 1536

	fieldID          = "id"
	fieldVector      = "vector"
	fieldProfileKind = "profile_kind"
	fieldProfileID   = "profile_id"
)

// ProfileVectorsSchema profile 向量集合 Schema，主键为 kind:id
func ProfileVectorsSchema(name string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    "Academic profile embeddings for matching",
		Fields: []*entity.Field{
			{
				Name:       fieldID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     fieldProfileKind,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "32",
				},
			},
			{
				Name:     fieldProfileID,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
		},
	}
}
