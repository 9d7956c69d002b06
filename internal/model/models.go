package model

// Person is a row of the dim_person dimension table
type Person struct {
	ID     int64  `json:"person_id"`
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender string `json:"gender"`
	City   string `json:"city"`
}

// Purchase is a row of the fact_people fact table.
// PersonID is written as given; it is not checked against dim_person.
type Purchase struct {
	ID       int64   `json:"fact_id"`
	PersonID int64   `json:"person_id"`
	Amount   float64 `json:"purchase_amount"`
	Category string  `json:"purchase_category"`
}
