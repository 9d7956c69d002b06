// Package dataset supplies the rows the loader appends to the warehouse.
package dataset

import "go-star-pipeline/internal/model"

// Source yields a batch of dimension rows and a batch of fact rows.
type Source interface {
	Persons() []model.Person
	Purchases() []model.Purchase
}

// Static is a Source over caller-supplied rows.
type Static struct {
	People []model.Person
	Facts  []model.Purchase
}

func (s Static) Persons() []model.Person     { return s.People }
func (s Static) Purchases() []model.Purchase { return s.Facts }

// Sample returns the fixed five-person sample. Each purchase refers to the
// person at the same position, assuming a fresh dim_person numbered from 1.
func Sample() Source {
	return Static{
		People: []model.Person{
			{Name: "John", Age: 28, Gender: "Male", City: "New York"},
			{Name: "Jane", Age: 34, Gender: "Female", City: "Los Angeles"},
			{Name: "Doe", Age: 29, Gender: "Male", City: "Chicago"},
			{Name: "Alice", Age: 22, Gender: "Female", City: "Houston"},
			{Name: "Bob", Age: 45, Gender: "Male", City: "Phoenix"},
		},
		Facts: []model.Purchase{
			{PersonID: 1, Amount: 250.50, Category: "Medium"},
			{PersonID: 2, Amount: 300.00, Category: "High"},
			{PersonID: 3, Amount: 150.75, Category: "Low"},
			{PersonID: 4, Amount: 200.00, Category: "Medium"},
			{PersonID: 5, Amount: 400.25, Category: "High"},
		},
	}
}
