package dto

import "tallybook/internal/domain/customer"

// CustomerRequest is the request body for creating or updating a customer.
type CustomerRequest struct {
	CustomerID string `json:"customerId"`
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
}

// ToEntity converts DTO to domain entity.
func (r *CustomerRequest) ToEntity() *customer.Customer {
	return &customer.Customer{
		CustomerID: r.CustomerID,
		Name:       r.Name,
		Phone:      r.Phone,
		Email:      r.Email,
		Address:    r.Address,
	}
}
