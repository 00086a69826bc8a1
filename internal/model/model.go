// Package model declares the two record kinds the pipeline handles and their
// storage mapping.
//
// Source JSON keeps its upstream key spelling (userId); tables use snake_case
// column names. The contract carries that mapping, so the validator emits
// rows already aligned with the table spec.
package model

import (
	"postetl/internal/schema"
	"postetl/internal/storage"
)

// PostContract is the fixed shape of one post record.
func PostContract() schema.Contract {
	return schema.Contract{
		Name: "posts",
		Fields: []schema.Field{
			{Name: "userId", Column: "user_id", Type: schema.TypeInteger, Required: true},
			{Name: "id", Column: "id", Type: schema.TypeInteger, Required: true},
			{Name: "title", Column: "title", Type: schema.TypeText, Required: true},
			{Name: "body", Column: "body", Type: schema.TypeText, Required: true},
		},
	}
}

// UserContract is the fixed shape of one user record. Extra fields in the
// source payload (address, company, ...) are ignored by validation.
func UserContract() schema.Contract {
	return schema.Contract{
		Name: "users",
		Fields: []schema.Field{
			{Name: "id", Column: "id", Type: schema.TypeInteger, Required: true},
			{Name: "name", Column: "name", Type: schema.TypeText, Required: true},
			{Name: "username", Column: "username", Type: schema.TypeText, Required: true},
			{Name: "email", Column: "email", Type: schema.TypeText, Required: true},
		},
	}
}

// TableFor derives the storage spec from a contract. The post/user id column
// is the primary key; every contract field is NOT NULL because validation
// guarantees no missing values.
func TableFor(c schema.Contract) storage.TableSpec {
	cols := make([]storage.ColumnSpec, len(c.Fields))
	for i, f := range c.Fields {
		cols[i] = storage.ColumnSpec{
			Name:       f.ColumnName(),
			Type:       string(f.Type),
			PrimaryKey: f.ColumnName() == "id",
			NotNull:    f.Required,
		}
	}
	return storage.TableSpec{Name: c.Name, Columns: cols}
}
